package model

import (
	"encoding/json"
	"time"
)

type AlertType string

const AlertTypeMissedCall AlertType = "missed_call"

type Alert struct {
	ID          string           `db:"id" json:"id"`
	HouseholdID string           `db:"household_id" json:"householdId"`
	RecipientID string           `db:"recipient_id" json:"recipientId"`
	SessionID   *string          `db:"session_id" json:"sessionId,omitempty"`
	Type        AlertType        `db:"type" json:"type"`
	Message     string           `db:"message" json:"message"`
	Metadata    *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

type CreateAlertParams struct {
	HouseholdID string
	RecipientID string
	SessionID   *string
	Type        AlertType
	Message     string
	Metadata    *json.RawMessage
}
