package model

import "time"

type CallLog struct {
	ID              string      `db:"id" json:"id"`
	SessionID       *string     `db:"session_id" json:"sessionId,omitempty"`
	BatchID         *string     `db:"batch_id" json:"batchId,omitempty"`
	HouseholdID     string      `db:"household_id" json:"householdId"`
	RecipientID     string      `db:"recipient_id" json:"recipientId"`
	CallType        CallType    `db:"call_type" json:"callType"`
	Slot            Slot        `db:"slot" json:"slot"`
	Outcome         CallOutcome `db:"outcome" json:"outcome"`
	ScheduledTime   time.Time   `db:"scheduled_time" json:"scheduledTime"`
	DurationSeconds *int        `db:"duration_seconds" json:"durationSeconds,omitempty"`
	Summary         *string     `db:"summary" json:"summary,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

type UpsertCallLogParams struct {
	SessionID     string
	HouseholdID   string
	RecipientID   string
	Slot          Slot
	Outcome       CallOutcome
	ScheduledTime time.Time
}

type CreateBatchCallLogParams struct {
	BatchID       string
	HouseholdID   string
	RecipientID   string
	Slot          Slot
	ScheduledTime time.Time
}
