package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/audit"
	"github.com/familycare/checkin-dispatch/internal/database"
	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/sse"
)

const InAppProvider = "in_app"

var errTransitionLost = errors.New("session status changed concurrently")

// legalTransitions is the session state DAG. Terminal states have no entry.
var legalTransitions = map[model.SessionStatus][]model.SessionStatus{
	model.SessionStatusScheduled: {
		model.SessionStatusRinging,
		model.SessionStatusActive,
		model.SessionStatusMissed,
		model.SessionStatusFailed,
		model.SessionStatusDisconnected,
	},
	model.SessionStatusRinging: {
		model.SessionStatusActive,
		model.SessionStatusCompleted,
		model.SessionStatusMissed,
		model.SessionStatusFailed,
		model.SessionStatusDisconnected,
	},
	model.SessionStatusActive: {
		model.SessionStatusCompleted,
		model.SessionStatusFailed,
		model.SessionStatusDisconnected,
	},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to model.SessionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EventPublisher broadcasts household-scoped dashboard events.
type EventPublisher interface {
	Publish(ctx context.Context, householdID string, event sse.Event) error
}

// HouseholdNotifier pushes an update to the other members of a household.
type HouseholdNotifier interface {
	NotifyHousehold(ctx context.Context, householdID, excludeToken string, n Notification) int
}

// CredentialResolver finds a recipient's delivery credential.
type CredentialResolver interface {
	Resolve(ctx context.Context, householdID, recipientID string) (*model.Credential, error)
}

type UpdateStatusParams struct {
	SessionID       string
	Status          model.SessionStatus
	CallUUID        *string
	DurationSeconds *int
}

type TransitionResult struct {
	Session  *model.CallSession
	Previous model.SessionStatus
	// Changed is false when the session already had the requested status.
	Changed bool
}

type SessionManager struct {
	db          database.TxRunner
	sessionRepo repository.CallSessionRepository
	callLogRepo repository.CallLogRepository
	credentials CredentialResolver
	notifier    HouseholdNotifier
	events      EventPublisher
	now         func() time.Time
	goAsync     func(func())
}

func NewSessionManager(
	db database.TxRunner,
	sessionRepo repository.CallSessionRepository,
	callLogRepo repository.CallLogRepository,
	credentials CredentialResolver,
	notifier HouseholdNotifier,
	events EventPublisher,
) *SessionManager {
	return &SessionManager{
		db:          db,
		sessionRepo: sessionRepo,
		callLogRepo: callLogRepo,
		credentials: credentials,
		notifier:    notifier,
		events:      events,
		now:         time.Now,
		goAsync:     func(fn func()) { go fn() },
	}
}

// CreateScheduled writes the scheduled session and its initiated call log in
// one transaction. It returns repository.ErrDuplicateSlot when the slot
// already has a session.
func (m *SessionManager) CreateScheduled(ctx context.Context, due model.DueCall, source model.CredentialSource) (*model.CallSession, error) {
	meta := map[string]any{
		"scheduleId": due.ScheduleID,
		"callType":   due.CallType,
	}
	if source != "" {
		meta["credentialSource"] = source
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal session metadata: %w", err)
	}
	metadata := json.RawMessage(raw)

	var session *model.CallSession
	err = m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := m.sessionRepo.WithTx(tx).Create(ctx, model.CreateCallSessionParams{
			ID:            uuid.NewString(),
			HouseholdID:   due.HouseholdID,
			RecipientID:   due.RecipientID,
			Provider:      InAppProvider,
			Slot:          due.Slot,
			CallDate:      due.CallDate,
			ScheduledTime: due.ScheduledAt,
			Metadata:      &metadata,
		})
		if err != nil {
			return err
		}

		if _, err := m.callLogRepo.WithTx(tx).UpsertForSession(ctx, model.UpsertCallLogParams{
			SessionID:     created.ID,
			HouseholdID:   created.HouseholdID,
			RecipientID:   created.RecipientID,
			Slot:          created.Slot,
			Outcome:       model.CallOutcomeInitiated,
			ScheduledTime: created.ScheduledTime,
		}); err != nil {
			return fmt.Errorf("upsert call log: %w", err)
		}

		session = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(ctx, session, sse.EventCallScheduled)
	return session, nil
}

// UpdateStatus applies an inbound status callback. Repeating the current status
// is a no-op; any other illegal move is rejected without touching the store.
func (m *SessionManager) UpdateStatus(ctx context.Context, params UpdateStatusParams) (*TransitionResult, error) {
	if !params.Status.Valid() {
		return nil, apperrors.InvalidInput("status", fmt.Sprintf("unknown status %q", params.Status))
	}
	if params.DurationSeconds != nil && *params.DurationSeconds < 0 {
		return nil, apperrors.InvalidInput("durationSeconds", "must not be negative")
	}

	session, err := m.sessionRepo.FindByID(ctx, params.SessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.SessionNotFound(params.SessionID)
	}

	now := m.now()
	p := model.TransitionParams{
		ID:              session.ID,
		From:            session.Status,
		To:              params.Status,
		ProviderCallID:  params.CallUUID,
		DurationSeconds: params.DurationSeconds,
		At:              now,
	}
	if params.Status == model.SessionStatusActive {
		p.StartedAt = &now
	}
	if params.Status.IsTerminal() {
		p.EndedAt = &now
	}

	result, err := m.transition(ctx, session, p)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		m.afterCallback(ctx, result.Session)
	}
	return result, nil
}

// Reap force-moves a stale session to target. Reaped sessions are broadcast
// but household members are not pushed.
func (m *SessionManager) Reap(ctx context.Context, session *model.CallSession, target model.SessionStatus, duration *int) (*TransitionResult, error) {
	now := m.now()
	p := model.TransitionParams{
		ID:              session.ID,
		From:            session.Status,
		To:              target,
		DurationSeconds: duration,
		At:              now,
	}
	if target.IsTerminal() {
		ended := now
		if session.StartedAt != nil && duration != nil {
			ended = session.StartedAt.Add(time.Duration(*duration) * time.Second)
		}
		p.EndedAt = &ended
	}

	result, err := m.transition(ctx, session, p)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		audit.Log(ctx, audit.Event{
			Type:        audit.EventSessionReaped,
			HouseholdID: session.HouseholdID,
			RecipientID: session.RecipientID,
			SessionID:   session.ID,
			Details: map[string]interface{}{
				"from": string(result.Previous),
				"to":   string(target),
			},
		})
		m.publish(ctx, result.Session, eventForStatus(target))
	}
	return result, nil
}

func (m *SessionManager) transition(ctx context.Context, session *model.CallSession, p model.TransitionParams) (*TransitionResult, error) {
	if session.Status == p.To {
		return &TransitionResult{Session: session, Previous: session.Status}, nil
	}
	if !CanTransition(session.Status, p.To) {
		m.rejectTransition(ctx, session, p.To)
		return nil, apperrors.InvalidTransition(string(session.Status), string(p.To))
	}

	err := m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := m.sessionRepo.WithTx(tx).Transition(ctx, p)
		if err != nil {
			return fmt.Errorf("transition session: %w", err)
		}
		if !ok {
			return errTransitionLost
		}
		if outcome, terminal := model.OutcomeForStatus(p.To); terminal {
			if err := m.callLogRepo.WithTx(tx).UpdateOutcome(ctx, session.ID, outcome, p.DurationSeconds); err != nil {
				return fmt.Errorf("update call log outcome: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errTransitionLost) {
		current, findErr := m.sessionRepo.FindByID(ctx, session.ID)
		if findErr != nil {
			return nil, apperrors.Database(findErr)
		}
		if current == nil {
			return nil, apperrors.SessionNotFound(session.ID)
		}
		if current.Status == p.To {
			return &TransitionResult{Session: current, Previous: current.Status}, nil
		}
		m.rejectTransition(ctx, current, p.To)
		return nil, apperrors.InvalidTransition(string(current.Status), string(p.To))
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	updated := *session
	updated.Status = p.To
	updated.UpdatedAt = p.At
	if p.ProviderCallID != nil {
		updated.ProviderCallID = p.ProviderCallID
	}
	if p.StartedAt != nil && updated.StartedAt == nil {
		updated.StartedAt = p.StartedAt
	}
	if p.EndedAt != nil {
		updated.EndedAt = p.EndedAt
	}
	if p.DurationSeconds != nil {
		updated.DurationSeconds = p.DurationSeconds
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("householdId", session.HouseholdID).
		Str("from", string(session.Status)).
		Str("to", string(p.To)).
		Msg("call session transitioned")

	return &TransitionResult{Session: &updated, Previous: session.Status, Changed: true}, nil
}

func (m *SessionManager) rejectTransition(ctx context.Context, session *model.CallSession, to model.SessionStatus) {
	audit.Log(ctx, audit.Event{
		Type:        audit.EventTransitionRejected,
		HouseholdID: session.HouseholdID,
		RecipientID: session.RecipientID,
		SessionID:   session.ID,
		Details: map[string]interface{}{
			"from": string(session.Status),
			"to":   string(to),
		},
	})
}

func (m *SessionManager) afterCallback(ctx context.Context, session *model.CallSession) {
	event := eventForStatus(session.Status)
	if event == "" {
		return
	}
	m.publish(ctx, session, event)

	if session.Status != model.SessionStatusActive && session.Status != model.SessionStatusCompleted {
		return
	}
	if m.notifier == nil {
		return
	}

	bg := context.WithoutCancel(ctx)
	snapshot := *session
	m.goAsync(func() {
		m.notifyHousehold(bg, &snapshot)
	})
}

func (m *SessionManager) notifyHousehold(ctx context.Context, session *model.CallSession) {
	var exclude string
	if m.credentials != nil {
		cred, err := m.credentials.Resolve(ctx, session.HouseholdID, session.RecipientID)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("could not resolve recipient token for exclusion")
		} else if cred != nil && cred.Source == model.SourceDevicePairing {
			exclude = cred.PushToken
		}
	}

	n := Notification{
		Type:        NotificationHouseholdUpdate,
		SessionID:   session.ID,
		HouseholdID: session.HouseholdID,
		RecipientID: session.RecipientID,
		Data:        map[string]any{"status": string(session.Status)},
	}
	switch session.Status {
	case model.SessionStatusActive:
		n.Title = "Check-in call started"
		n.Body = "Your family member has joined their check-in call."
	case model.SessionStatusCompleted:
		n.Title = "Check-in call completed"
		n.Body = "Today's check-in call has finished."
	}

	delivered := m.notifier.NotifyHousehold(ctx, session.HouseholdID, exclude, n)
	log.Debug().
		Str("sessionId", session.ID).
		Int("delivered", delivered).
		Msg("household notified")
}

func (m *SessionManager) publish(ctx context.Context, session *model.CallSession, eventType string) {
	if m.events == nil || eventType == "" {
		return
	}
	event, err := sse.NewEvent(eventType, session)
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to encode session event")
		return
	}
	if err := m.events.Publish(ctx, session.HouseholdID, event); err != nil {
		log.Warn().Err(err).
			Str("sessionId", session.ID).
			Str("event", eventType).
			Msg("failed to publish session event")
	}
}

func eventForStatus(status model.SessionStatus) string {
	switch status {
	case model.SessionStatusActive:
		return sse.EventCallStarted
	case model.SessionStatusCompleted:
		return sse.EventCallCompleted
	case model.SessionStatusMissed:
		return sse.EventCallMissed
	}
	return ""
}
