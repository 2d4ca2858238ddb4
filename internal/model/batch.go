package model

import "time"

type BatchCallMapping struct {
	ID            string    `db:"id" json:"id"`
	BatchID       string    `db:"batch_id" json:"batchId"`
	HouseholdID   string    `db:"household_id" json:"householdId"`
	RecipientID   string    `db:"recipient_id" json:"recipientId"`
	PhoneNumber   string    `db:"phone_number" json:"phoneNumber"`
	Label         string    `db:"label" json:"label"`
	Slot          Slot      `db:"slot" json:"slot"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduledTime"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type CreateBatchCallMappingParams struct {
	BatchID       string
	HouseholdID   string
	RecipientID   string
	PhoneNumber   string
	Label         string
	Slot          Slot
	ScheduledTime time.Time
}
