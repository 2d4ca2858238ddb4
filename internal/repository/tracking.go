package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
)

type DailyCallTrackingRepository interface {
	Find(ctx context.Context, recipientID, householdID, callDate string) (*model.DailyCallTracking, error)
	// MarkCalled upserts the (recipient, household, day) row and sets the flag for slot.
	MarkCalled(ctx context.Context, recipientID, householdID, callDate string, slot model.Slot) error
	WithTx(tx *sqlx.Tx) DailyCallTrackingRepository
}

type dailyCallTrackingRepo struct {
	db database.DBTX
}

func NewDailyCallTrackingRepository(db *sqlx.DB) DailyCallTrackingRepository {
	return &dailyCallTrackingRepo{db: db}
}

func (r *dailyCallTrackingRepo) WithTx(tx *sqlx.Tx) DailyCallTrackingRepository {
	return &dailyCallTrackingRepo{db: tx}
}

func (r *dailyCallTrackingRepo) Find(ctx context.Context, recipientID, householdID, callDate string) (*model.DailyCallTracking, error) {
	var tracking model.DailyCallTracking
	err := r.db.GetContext(ctx, &tracking, `
		SELECT * FROM daily_call_tracking
		WHERE recipient_id = $1 AND household_id = $2 AND call_date = $3
	`, recipientID, householdID, callDate)
	return HandleNotFound(&tracking, err)
}

func (r *dailyCallTrackingRepo) MarkCalled(ctx context.Context, recipientID, householdID, callDate string, slot model.Slot) error {
	column, err := slotColumn(slot)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO daily_call_tracking (recipient_id, household_id, call_date, %[1]s, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (recipient_id, household_id, call_date)
		DO UPDATE SET %[1]s = TRUE, updated_at = NOW()
	`, column)
	_, err = r.db.ExecContext(ctx, query, recipientID, householdID, callDate)
	return err
}

func slotColumn(slot model.Slot) (string, error) {
	switch slot {
	case model.SlotMorning:
		return "morning_called", nil
	case model.SlotAfternoon:
		return "afternoon_called", nil
	case model.SlotEvening:
		return "evening_called", nil
	}
	return "", fmt.Errorf("unknown slot %q", slot)
}
