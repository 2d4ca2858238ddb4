package model

import "time"

// DailyCallTracking is the per-day idempotency guard, unique on
// (recipient_id, household_id, call_date).
type DailyCallTracking struct {
	RecipientID     string    `db:"recipient_id" json:"recipientId"`
	HouseholdID     string    `db:"household_id" json:"householdId"`
	CallDate        string    `db:"call_date" json:"callDate"`
	MorningCalled   bool      `db:"morning_called" json:"morningCalled"`
	AfternoonCalled bool      `db:"afternoon_called" json:"afternoonCalled"`
	EveningCalled   bool      `db:"evening_called" json:"eveningCalled"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

func (t *DailyCallTracking) Called(slot Slot) bool {
	if t == nil {
		return false
	}
	switch slot {
	case SlotMorning:
		return t.MorningCalled
	case SlotAfternoon:
		return t.AfternoonCalled
	case SlotEvening:
		return t.EveningCalled
	}
	return false
}
