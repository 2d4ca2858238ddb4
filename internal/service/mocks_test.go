package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/push"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/sse"
	"github.com/familycare/checkin-dispatch/internal/telephony"
)

// fakeTx runs the callback with a nil transaction; mock repositories ignore it.
type fakeTx struct {
	calls int
}

func (f *fakeTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	f.calls++
	return fn(nil)
}

type mockScheduleRepo struct {
	mock.Mock
}

func (m *mockScheduleRepo) FindActive(ctx context.Context) ([]model.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Schedule), args.Error(1)
}

type mockCallSessionRepo struct {
	mock.Mock
}

func (m *mockCallSessionRepo) FindByID(ctx context.Context, id string) (*model.CallSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) Create(ctx context.Context, params model.CreateCallSessionParams) (*model.CallSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) Transition(ctx context.Context, params model.TransitionParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *mockCallSessionRepo) FindUnansweredBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]model.CallSession, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CallSession), args.Error(1)
}

func (m *mockCallSessionRepo) WithTx(tx *sqlx.Tx) repository.CallSessionRepository {
	return m
}

type mockCallLogRepo struct {
	mock.Mock
}

func (m *mockCallLogRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.CallLog, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallLog), args.Error(1)
}

func (m *mockCallLogRepo) UpsertForSession(ctx context.Context, params model.UpsertCallLogParams) (*model.CallLog, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallLog), args.Error(1)
}

func (m *mockCallLogRepo) CreateForBatch(ctx context.Context, params model.CreateBatchCallLogParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockCallLogRepo) UpdateOutcome(ctx context.Context, sessionID string, outcome model.CallOutcome, durationSeconds *int) error {
	args := m.Called(ctx, sessionID, outcome, durationSeconds)
	return args.Error(0)
}

func (m *mockCallLogRepo) WithTx(tx *sqlx.Tx) repository.CallLogRepository {
	return m
}

type mockTrackingRepo struct {
	mock.Mock
}

func (m *mockTrackingRepo) Find(ctx context.Context, recipientID, householdID, callDate string) (*model.DailyCallTracking, error) {
	args := m.Called(ctx, recipientID, householdID, callDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DailyCallTracking), args.Error(1)
}

func (m *mockTrackingRepo) MarkCalled(ctx context.Context, recipientID, householdID, callDate string, slot model.Slot) error {
	args := m.Called(ctx, recipientID, householdID, callDate, slot)
	return args.Error(0)
}

func (m *mockTrackingRepo) WithTx(tx *sqlx.Tx) repository.DailyCallTrackingRepository {
	return m
}

type mockPairingRepo struct {
	mock.Mock
}

func (m *mockPairingRepo) FindClaimed(ctx context.Context, householdID, recipientID string) (*model.DevicePairing, error) {
	args := m.Called(ctx, householdID, recipientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DevicePairing), args.Error(1)
}

func (m *mockPairingRepo) ClearDeviceToken(ctx context.Context, id string, key string) error {
	args := m.Called(ctx, id, key)
	return args.Error(0)
}

func (m *mockPairingRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	args := m.Called(ctx, grace)
	return args.Get(0).(int64), args.Error(1)
}

type mockPushTokenRepo struct {
	mock.Mock
}

func (m *mockPushTokenRepo) FindLatestActiveByUser(ctx context.Context, userID string) (*model.PushToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PushToken), args.Error(1)
}

func (m *mockPushTokenRepo) FindActiveByHousehold(ctx context.Context, householdID string) ([]model.PushToken, error) {
	args := m.Called(ctx, householdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PushToken), args.Error(1)
}

func (m *mockPushTokenRepo) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockBatchMappingRepo struct {
	mock.Mock
}

func (m *mockBatchMappingRepo) Create(ctx context.Context, params model.CreateBatchCallMappingParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockBatchMappingRepo) FindByBatchID(ctx context.Context, batchID string) ([]model.BatchCallMapping, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BatchCallMapping), args.Error(1)
}

func (m *mockBatchMappingRepo) WithTx(tx *sqlx.Tx) repository.BatchCallMappingRepository {
	return m
}

type mockPushSender struct {
	mock.Mock
	voipDisabled bool
}

func (m *mockPushSender) VoIPEnabled() bool {
	return !m.voipDisabled
}

func (m *mockPushSender) Send(ctx context.Context, msg push.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockPushSender) SendVoIP(ctx context.Context, msg push.VoIPMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, cred *model.Credential, voip bool) error {
	args := m.Called(ctx, cred, voip)
	return args.Error(0)
}

type mockBatchProvider struct {
	mock.Mock
}

func (m *mockBatchProvider) Name() string {
	return "mock_voice"
}

func (m *mockBatchProvider) SubmitBatch(ctx context.Context, req telephony.BatchRequest) (telephony.BatchResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(telephony.BatchResult), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyHousehold(ctx context.Context, householdID, excludeToken string, n Notification) int {
	args := m.Called(ctx, householdID, excludeToken, n)
	return args.Int(0)
}

type mockCredentialResolver struct {
	mock.Mock
}

func (m *mockCredentialResolver) Resolve(ctx context.Context, householdID, recipientID string) (*model.Credential, error) {
	args := m.Called(ctx, householdID, recipientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, householdID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
