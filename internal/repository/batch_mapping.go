package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
)

type BatchCallMappingRepository interface {
	Create(ctx context.Context, params model.CreateBatchCallMappingParams) error
	FindByBatchID(ctx context.Context, batchID string) ([]model.BatchCallMapping, error)
	WithTx(tx *sqlx.Tx) BatchCallMappingRepository
}

type batchCallMappingRepo struct {
	db database.DBTX
}

func NewBatchCallMappingRepository(db *sqlx.DB) BatchCallMappingRepository {
	return &batchCallMappingRepo{db: db}
}

func (r *batchCallMappingRepo) WithTx(tx *sqlx.Tx) BatchCallMappingRepository {
	return &batchCallMappingRepo{db: tx}
}

func (r *batchCallMappingRepo) Create(ctx context.Context, params model.CreateBatchCallMappingParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_call_mappings (batch_id, household_id, recipient_id, phone_number, label, slot, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (batch_id, recipient_id) DO NOTHING
	`, params.BatchID, params.HouseholdID, params.RecipientID, params.PhoneNumber,
		params.Label, params.Slot, params.ScheduledTime)
	return err
}

func (r *batchCallMappingRepo) FindByBatchID(ctx context.Context, batchID string) ([]model.BatchCallMapping, error) {
	var mappings []model.BatchCallMapping
	err := r.db.SelectContext(ctx, &mappings, `
		SELECT * FROM batch_call_mappings
		WHERE batch_id = $1
		ORDER BY created_at
	`, batchID)
	return mappings, err
}
