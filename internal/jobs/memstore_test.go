package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/push"
	"github.com/familycare/checkin-dispatch/internal/repository"
)

// In-memory stores honouring the same natural keys as the postgres schema.

type memTx struct{}

func (memTx) WithTx(ctx context.Context, fn database.TxFunc) error { return fn(nil) }

type memScheduleRepo struct {
	schedules []model.Schedule
	err       error
}

func (r *memScheduleRepo) FindActive(ctx context.Context) ([]model.Schedule, error) {
	return r.schedules, r.err
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.CallSession
	order    []string
}

func newMemSessionRepo(sessions ...model.CallSession) *memSessionRepo {
	r := &memSessionRepo{sessions: make(map[string]*model.CallSession)}
	for i := range sessions {
		s := sessions[i]
		r.sessions[s.ID] = &s
		r.order = append(r.order, s.ID)
	}
	return r
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Create(ctx context.Context, params model.CreateCallSessionParams) (*model.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RecipientID == params.RecipientID && s.CallDate == params.CallDate && s.Slot == params.Slot {
			return nil, repository.ErrDuplicateSlot
		}
	}
	s := &model.CallSession{
		ID:            params.ID,
		HouseholdID:   params.HouseholdID,
		RecipientID:   params.RecipientID,
		Status:        model.SessionStatusScheduled,
		Provider:      params.Provider,
		Slot:          params.Slot,
		CallDate:      params.CallDate,
		ScheduledTime: params.ScheduledTime,
		Metadata:      params.Metadata,
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Transition(ctx context.Context, p model.TransitionParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[p.ID]
	if !ok || s.Status != p.From {
		return false, nil
	}
	s.Status = p.To
	if p.StartedAt != nil && s.StartedAt == nil {
		s.StartedAt = p.StartedAt
	}
	if p.EndedAt != nil {
		s.EndedAt = p.EndedAt
	}
	if p.DurationSeconds != nil {
		s.DurationSeconds = p.DurationSeconds
	}
	return true, nil
}

func (r *memSessionRepo) FindUnansweredBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error) {
	return r.filter(func(s *model.CallSession) bool {
		unanswered := s.Status == model.SessionStatusScheduled || s.Status == model.SessionStatusRinging
		return unanswered && s.ScheduledTime.Before(cutoff)
	}), nil
}

func (r *memSessionRepo) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error) {
	return r.filter(func(s *model.CallSession) bool {
		return s.Status == model.SessionStatusActive && s.StartedAt != nil && s.StartedAt.Before(cutoff)
	}), nil
}

func (r *memSessionRepo) WithTx(tx *sqlx.Tx) repository.CallSessionRepository { return r }

func (r *memSessionRepo) filter(keep func(*model.CallSession) bool) []model.CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CallSession
	for _, id := range r.order {
		if s := r.sessions[id]; keep(s) {
			out = append(out, *s)
		}
	}
	return out
}

func (r *memSessionRepo) all() []model.CallSession {
	return r.filter(func(*model.CallSession) bool { return true })
}

type memCallLogRepo struct {
	mu   sync.Mutex
	logs map[string]*model.CallLog
}

func newMemCallLogRepo() *memCallLogRepo {
	return &memCallLogRepo{logs: make(map[string]*model.CallLog)}
}

func (r *memCallLogRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[sessionID], nil
}

func (r *memCallLogRepo) UpsertForSession(ctx context.Context, p model.UpsertCallLogParams) (*model.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.logs[p.SessionID]; ok {
		return existing, nil
	}
	sessionID := p.SessionID
	l := &model.CallLog{
		ID:            "log-" + p.SessionID,
		SessionID:     &sessionID,
		HouseholdID:   p.HouseholdID,
		RecipientID:   p.RecipientID,
		Slot:          p.Slot,
		Outcome:       p.Outcome,
		ScheduledTime: p.ScheduledTime,
	}
	r.logs[p.SessionID] = l
	return l, nil
}

func (r *memCallLogRepo) CreateForBatch(ctx context.Context, p model.CreateBatchCallLogParams) error {
	return nil
}

func (r *memCallLogRepo) UpdateOutcome(ctx context.Context, sessionID string, outcome model.CallOutcome, durationSeconds *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[sessionID]; ok {
		l.Outcome = outcome
		l.DurationSeconds = durationSeconds
	}
	return nil
}

func (r *memCallLogRepo) WithTx(tx *sqlx.Tx) repository.CallLogRepository { return r }

func (r *memCallLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

type memTrackingRepo struct {
	mu      sync.Mutex
	rows    map[string]*model.DailyCallTracking
	findErr error
}

func newMemTrackingRepo() *memTrackingRepo {
	return &memTrackingRepo{rows: make(map[string]*model.DailyCallTracking)}
}

func trackingKey(recipientID, householdID, callDate string) string {
	return fmt.Sprintf("%s|%s|%s", recipientID, householdID, callDate)
}

func (r *memTrackingRepo) Find(ctx context.Context, recipientID, householdID, callDate string) (*model.DailyCallTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	row, ok := r.rows[trackingKey(recipientID, householdID, callDate)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *memTrackingRepo) MarkCalled(ctx context.Context, recipientID, householdID, callDate string, slot model.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := trackingKey(recipientID, householdID, callDate)
	row, ok := r.rows[key]
	if !ok {
		row = &model.DailyCallTracking{RecipientID: recipientID, HouseholdID: householdID, CallDate: callDate}
		r.rows[key] = row
	}
	switch slot {
	case model.SlotMorning:
		row.MorningCalled = true
	case model.SlotAfternoon:
		row.AfternoonCalled = true
	case model.SlotEvening:
		row.EveningCalled = true
	}
	return nil
}

func (r *memTrackingRepo) WithTx(tx *sqlx.Tx) repository.DailyCallTrackingRepository { return r }

type memPairingRepo struct {
	mu        sync.Mutex
	pairings  []model.DevicePairing
	purged    int64
	purgeErr  error
	lastGrace time.Duration
}

func (r *memPairingRepo) FindClaimed(ctx context.Context, householdID, recipientID string) (*model.DevicePairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.pairings {
		p := r.pairings[i]
		if p.HouseholdID == householdID && p.RecipientID == recipientID && p.Status == model.PairingStatusClaimed {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memPairingRepo) ClearDeviceToken(ctx context.Context, id string, key string) error {
	return nil
}

func (r *memPairingRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastGrace = grace
	return r.purged, r.purgeErr
}

type memPushTokenRepo struct{}

func (memPushTokenRepo) FindLatestActiveByUser(ctx context.Context, userID string) (*model.PushToken, error) {
	return nil, nil
}

func (memPushTokenRepo) FindActiveByHousehold(ctx context.Context, householdID string) ([]model.PushToken, error) {
	return nil, nil
}

func (memPushTokenRepo) Deactivate(ctx context.Context, id string) error { return nil }

type heartbeatWrite struct {
	Job     string
	Status  model.HeartbeatStatus
	Details json.RawMessage
}

type memHeartbeatRepo struct {
	mu     sync.Mutex
	writes []heartbeatWrite
}

func (r *memHeartbeatRepo) Upsert(ctx context.Context, jobName string, status model.HeartbeatStatus, details any) error {
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, heartbeatWrite{Job: jobName, Status: status, Details: data})
	return nil
}

func (r *memHeartbeatRepo) Find(ctx context.Context, jobName string) (*model.CronHeartbeat, error) {
	return nil, nil
}

func (r *memHeartbeatRepo) List(ctx context.Context) ([]model.CronHeartbeat, error) {
	return nil, nil
}

func (r *memHeartbeatRepo) last() heartbeatWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[len(r.writes)-1]
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts []model.CreateAlertParams
	err    error
}

func (r *memAlertRepo) Create(ctx context.Context, params model.CreateAlertParams) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, a := range r.alerts {
		if *a.SessionID == *params.SessionID && a.Type == params.Type {
			return nil, nil
		}
	}
	r.alerts = append(r.alerts, params)
	return &model.Alert{HouseholdID: params.HouseholdID, SessionID: params.SessionID, Type: params.Type}, nil
}

func (r *memAlertRepo) WithTx(tx *sqlx.Tx) repository.AlertRepository { return r }

type recordingPushSender struct {
	mu       sync.Mutex
	messages []push.Message
	voip     []push.VoIPMessage
	err      error
}

func (s *recordingPushSender) Send(ctx context.Context, msg push.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

func (s *recordingPushSender) VoIPEnabled() bool { return true }

func (s *recordingPushSender) SendVoIP(ctx context.Context, msg push.VoIPMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voip = append(s.voip, msg)
	return s.err
}
