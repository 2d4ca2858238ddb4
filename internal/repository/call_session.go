package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
)

// ErrDuplicateSlot is returned by Create when a session already exists for the
// same (recipient, call date, slot).
var ErrDuplicateSlot = errors.New("call session already exists for slot")

type CallSessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.CallSession, error)
	Create(ctx context.Context, params model.CreateCallSessionParams) (*model.CallSession, error)
	// Transition applies params only while the stored status equals params.From.
	// It reports false when the row was missing or its status had moved on.
	Transition(ctx context.Context, params model.TransitionParams) (bool, error)
	FindUnansweredBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error)
	FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) CallSessionRepository
}

type callSessionRepo struct {
	db database.DBTX
}

func NewCallSessionRepository(db *sqlx.DB) CallSessionRepository {
	return &callSessionRepo{db: db}
}

func (r *callSessionRepo) WithTx(tx *sqlx.Tx) CallSessionRepository {
	return &callSessionRepo{db: tx}
}

func (r *callSessionRepo) FindByID(ctx context.Context, id string) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM call_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *callSessionRepo) Create(ctx context.Context, params model.CreateCallSessionParams) (*model.CallSession, error) {
	var session model.CallSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO call_sessions (id, household_id, recipient_id, status, provider, slot, call_date, scheduled_time, metadata)
		VALUES ($1, $2, $3, 'scheduled', $4, $5, $6, $7, $8)
		ON CONFLICT (recipient_id, call_date, slot) DO NOTHING
		RETURNING *
	`, params.ID, params.HouseholdID, params.RecipientID, params.Provider,
		params.Slot, params.CallDate, params.ScheduledTime, params.Metadata)
	created, err := HandleNotFound(&session, err)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, ErrDuplicateSlot
	}
	return created, nil
}

func (r *callSessionRepo) Transition(ctx context.Context, params model.TransitionParams) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE call_sessions SET
			status = $3,
			provider_call_id = COALESCE($4, provider_call_id),
			started_at = COALESCE($5, started_at),
			ended_at = COALESCE($6, ended_at),
			duration_seconds = COALESCE($7, duration_seconds),
			updated_at = $8
		WHERE id = $1 AND status = $2
	`, params.ID, params.From, params.To, params.ProviderCallID,
		params.StartedAt, params.EndedAt, params.DurationSeconds, params.At)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *callSessionRepo) FindUnansweredBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error) {
	var sessions []model.CallSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM call_sessions
		WHERE status IN ('scheduled', 'ringing') AND scheduled_time < $1
		ORDER BY scheduled_time
	`, cutoff)
	return sessions, err
}

func (r *callSessionRepo) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error) {
	var sessions []model.CallSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM call_sessions
		WHERE status = 'active' AND started_at IS NOT NULL AND started_at < $1
		ORDER BY started_at
	`, cutoff)
	return sessions, err
}
