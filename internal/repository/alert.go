package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
)

type AlertRepository interface {
	// Create is idempotent per (session, type); a duplicate returns (nil, nil).
	Create(ctx context.Context, params model.CreateAlertParams) (*model.Alert, error)
	WithTx(tx *sqlx.Tx) AlertRepository
}

type alertRepo struct {
	db database.DBTX
}

func NewAlertRepository(db *sqlx.DB) AlertRepository {
	return &alertRepo{db: db}
}

func (r *alertRepo) WithTx(tx *sqlx.Tx) AlertRepository {
	return &alertRepo{db: tx}
}

func (r *alertRepo) Create(ctx context.Context, params model.CreateAlertParams) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, `
		INSERT INTO alerts (household_id, recipient_id, session_id, type, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, type) DO NOTHING
		RETURNING *
	`, params.HouseholdID, params.RecipientID, params.SessionID, params.Type, params.Message, params.Metadata)
	return HandleNotFound(&alert, err)
}
