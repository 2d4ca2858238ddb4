package model

type CallType string

const (
	CallTypeInApp     CallType = "in_app"
	CallTypeTelephone CallType = "telephone"
)

type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
)

// Slots lists the three daily windows in chronological order.
var Slots = []Slot{SlotMorning, SlotAfternoon, SlotEvening}

type SessionStatus string

const (
	SessionStatusScheduled    SessionStatus = "scheduled"
	SessionStatusRinging      SessionStatus = "ringing"
	SessionStatusActive       SessionStatus = "active"
	SessionStatusCompleted    SessionStatus = "completed"
	SessionStatusMissed       SessionStatus = "missed"
	SessionStatusFailed       SessionStatus = "failed"
	SessionStatusDisconnected SessionStatus = "disconnected"
)

func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusMissed, SessionStatusFailed, SessionStatusDisconnected:
		return true
	}
	return false
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusRinging, SessionStatusActive,
		SessionStatusCompleted, SessionStatusMissed, SessionStatusFailed, SessionStatusDisconnected:
		return true
	}
	return false
}

type CallOutcome string

const (
	CallOutcomeInitiated    CallOutcome = "initiated"
	CallOutcomeScheduled    CallOutcome = "scheduled"
	CallOutcomeCompleted    CallOutcome = "completed"
	CallOutcomeMissed       CallOutcome = "missed"
	CallOutcomeFailed       CallOutcome = "failed"
	CallOutcomeDisconnected CallOutcome = "disconnected"
)

// OutcomeForStatus maps a terminal session status onto the call log outcome.
func OutcomeForStatus(status SessionStatus) (CallOutcome, bool) {
	switch status {
	case SessionStatusCompleted:
		return CallOutcomeCompleted, true
	case SessionStatusMissed:
		return CallOutcomeMissed, true
	case SessionStatusFailed:
		return CallOutcomeFailed, true
	case SessionStatusDisconnected:
		return CallOutcomeDisconnected, true
	}
	return "", false
}

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

type HeartbeatStatus string

const (
	HeartbeatStatusSuccess        HeartbeatStatus = "success"
	HeartbeatStatusPartialSuccess HeartbeatStatus = "partial_success"
	HeartbeatStatusError          HeartbeatStatus = "error"
)

type PairingStatus string

const (
	PairingStatusPending PairingStatus = "pending"
	PairingStatusClaimed PairingStatus = "claimed"
)
