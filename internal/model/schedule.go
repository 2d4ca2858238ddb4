package model

import "time"

// Schedule is a recipient's daily check-in configuration. Slot and quiet-hour
// values are local wall-clock times formatted "HH:MM" in Timezone.
type Schedule struct {
	ID            string    `db:"id" json:"id"`
	HouseholdID   string    `db:"household_id" json:"householdId"`
	RecipientID   string    `db:"recipient_id" json:"recipientId"`
	MorningTime   *string   `db:"morning_time" json:"morningTime,omitempty"`
	AfternoonTime *string   `db:"afternoon_time" json:"afternoonTime,omitempty"`
	EveningTime   *string   `db:"evening_time" json:"eveningTime,omitempty"`
	Timezone      string    `db:"timezone" json:"timezone"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	CallType      CallType  `db:"call_type" json:"callType"`
	QuietStart    *string   `db:"quiet_start" json:"quietStart,omitempty"`
	QuietEnd      *string   `db:"quiet_end" json:"quietEnd,omitempty"`
	ActiveDays    int       `db:"active_days" json:"activeDays"`
	PhoneNumber   *string   `db:"phone_number" json:"phoneNumber,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// SlotTime returns the configured local time for slot, or nil when the slot is unset.
func (s *Schedule) SlotTime(slot Slot) *string {
	switch slot {
	case SlotMorning:
		return s.MorningTime
	case SlotAfternoon:
		return s.AfternoonTime
	case SlotEvening:
		return s.EveningTime
	}
	return nil
}

// DueCall is one (household, recipient, slot, instant) tuple produced by the
// schedule resolver for the current tick.
type DueCall struct {
	ScheduleID  string
	HouseholdID string
	RecipientID string
	Slot        Slot
	ScheduledAt time.Time
	CallDate    string // YYYY-MM-DD in the recipient's timezone
	CallType    CallType
	PhoneNumber string
}
