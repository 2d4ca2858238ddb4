package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
)

type CallLogRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.CallLog, error)
	// UpsertForSession is keyed on session_id; re-running it for the same
	// session only refreshes updated_at.
	UpsertForSession(ctx context.Context, params model.UpsertCallLogParams) (*model.CallLog, error)
	CreateForBatch(ctx context.Context, params model.CreateBatchCallLogParams) error
	UpdateOutcome(ctx context.Context, sessionID string, outcome model.CallOutcome, durationSeconds *int) error
	WithTx(tx *sqlx.Tx) CallLogRepository
}

type callLogRepo struct {
	db database.DBTX
}

func NewCallLogRepository(db *sqlx.DB) CallLogRepository {
	return &callLogRepo{db: db}
}

func (r *callLogRepo) WithTx(tx *sqlx.Tx) CallLogRepository {
	return &callLogRepo{db: tx}
}

func (r *callLogRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.CallLog, error) {
	var entry model.CallLog
	err := r.db.GetContext(ctx, &entry, `
		SELECT * FROM call_logs WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&entry, err)
}

func (r *callLogRepo) UpsertForSession(ctx context.Context, params model.UpsertCallLogParams) (*model.CallLog, error) {
	var entry model.CallLog
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO call_logs (session_id, household_id, recipient_id, call_type, slot, outcome, scheduled_time)
		VALUES ($1, $2, $3, 'in_app', $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET updated_at = NOW()
		RETURNING *
	`, params.SessionID, params.HouseholdID, params.RecipientID, params.Slot, params.Outcome, params.ScheduledTime)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *callLogRepo) CreateForBatch(ctx context.Context, params model.CreateBatchCallLogParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_logs (batch_id, household_id, recipient_id, call_type, slot, outcome, scheduled_time)
		VALUES ($1, $2, $3, 'telephone', $4, 'scheduled', $5)
		ON CONFLICT (batch_id, recipient_id) DO NOTHING
	`, params.BatchID, params.HouseholdID, params.RecipientID, params.Slot, params.ScheduledTime)
	return err
}

func (r *callLogRepo) UpdateOutcome(ctx context.Context, sessionID string, outcome model.CallOutcome, durationSeconds *int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE call_logs SET
			outcome = $2,
			duration_seconds = COALESCE($3, duration_seconds),
			updated_at = $4
		WHERE session_id = $1
	`, sessionID, outcome, durationSeconds, time.Now())
	return err
}
