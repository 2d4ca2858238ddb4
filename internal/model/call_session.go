package model

import (
	"encoding/json"
	"time"
)

type CallSession struct {
	ID              string           `db:"id" json:"id"`
	HouseholdID     string           `db:"household_id" json:"householdId"`
	RecipientID     string           `db:"recipient_id" json:"recipientId"`
	Status          SessionStatus    `db:"status" json:"status"`
	Provider        string           `db:"provider" json:"provider"`
	ProviderCallID  *string          `db:"provider_call_id" json:"providerCallId,omitempty"`
	Slot            Slot             `db:"slot" json:"slot"`
	CallDate        string           `db:"call_date" json:"callDate"`
	ScheduledTime   time.Time        `db:"scheduled_time" json:"scheduledTime"`
	StartedAt       *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	EndedAt         *time.Time       `db:"ended_at" json:"endedAt,omitempty"`
	DurationSeconds *int             `db:"duration_seconds" json:"durationSeconds,omitempty"`
	Metadata        *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

type CreateCallSessionParams struct {
	ID            string
	HouseholdID   string
	RecipientID   string
	Provider      string
	Slot          Slot
	CallDate      string
	ScheduledTime time.Time
	Metadata      *json.RawMessage
}

// TransitionParams describes a conditional status change: the row is only
// updated while its stored status still equals From.
type TransitionParams struct {
	ID              string
	From            SessionStatus
	To              SessionStatus
	ProviderCallID  *string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	At              time.Time
}
