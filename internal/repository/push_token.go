package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/model"
)

type PushTokenRepository interface {
	FindLatestActiveByUser(ctx context.Context, userID string) (*model.PushToken, error)
	// FindActiveByHousehold returns active tokens of every household member, newest first.
	FindActiveByHousehold(ctx context.Context, householdID string) ([]model.PushToken, error)
	Deactivate(ctx context.Context, id string) error
}

type pushTokenRepo struct {
	db *sqlx.DB
}

func NewPushTokenRepository(db *sqlx.DB) PushTokenRepository {
	return &pushTokenRepo{db: db}
}

func (r *pushTokenRepo) FindLatestActiveByUser(ctx context.Context, userID string) (*model.PushToken, error) {
	var token model.PushToken
	err := r.db.GetContext(ctx, &token, `
		SELECT * FROM push_tokens
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID)
	return HandleNotFound(&token, err)
}

func (r *pushTokenRepo) FindActiveByHousehold(ctx context.Context, householdID string) ([]model.PushToken, error) {
	var tokens []model.PushToken
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT pt.* FROM push_tokens pt
		JOIN household_members hm ON hm.user_id = pt.user_id
		WHERE hm.household_id = $1 AND pt.is_active = TRUE
		ORDER BY pt.updated_at DESC
	`, householdID)
	return tokens, err
}

func (r *pushTokenRepo) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE push_tokens SET
			is_active = FALSE,
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}
