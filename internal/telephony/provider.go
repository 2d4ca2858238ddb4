// Package telephony talks to the voice-AI provider that places bulk
// telephone check-in calls.
package telephony

import (
	"context"
	"time"
)

// BatchProvider is the provider-agnostic surface the batch correlator uses.
type BatchProvider interface {
	Name() string
	SubmitBatch(ctx context.Context, req BatchRequest) (BatchResult, error)
}

// Recipient is one call target inside a batch. Label is echoed back by the
// provider in per-call webhooks.
type Recipient struct {
	PhoneNumber string            `json:"phone_number"`
	Label       string            `json:"label"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type BatchRequest struct {
	// RequestID makes resubmission of the same request idempotent at the provider.
	RequestID  string
	AgentID    string
	FromNumber string
	RunAt      time.Time
	Recipients []Recipient
}

type BatchResult struct {
	BatchID  string
	Accepted int
}
