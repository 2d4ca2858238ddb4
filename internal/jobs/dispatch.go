package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/familycare/checkin-dispatch/internal/config"
	"github.com/familycare/checkin-dispatch/internal/metrics"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/service"
)

type DueCallResolver interface {
	Resolve(ctx context.Context, now time.Time) ([]model.DueCall, error)
}

type SessionCreator interface {
	CreateScheduled(ctx context.Context, due model.DueCall, source model.CredentialSource) (*model.CallSession, error)
}

type NotificationSender interface {
	Send(ctx context.Context, cred model.Credential, n service.Notification) service.DeliveryResult
}

type BatchDispatcher interface {
	Dispatch(ctx context.Context, due []model.DueCall) service.BatchResult
}

// TickResult is the heartbeat detail of one dispatch tick.
type TickResult struct {
	Due               int                   `json:"due"`
	InApp             int                   `json:"inApp"`
	Telephone         int                   `json:"telephone"`
	Sent              int                   `json:"sent"`
	AlreadyCalled     int                   `json:"alreadyCalled"`
	NoToken           int                   `json:"noToken"`
	SendFailed        int                   `json:"sendFailed"`
	TokensDeactivated int                   `json:"tokensDeactivated"`
	Errors            int                   `json:"errors"`
	Sources           map[string]int        `json:"sources,omitempty"`
	ErrorBreakdown    map[string]int        `json:"errorBreakdown,omitempty"`
	Batch             *service.BatchResult  `json:"batch,omitempty"`
	Error             string                `json:"error,omitempty"`
	Status            model.HeartbeatStatus `json:"-"`
}

// tickAccumulator collects per-recipient outcomes of a single tick. It is
// created per Run so concurrent ticks never share counters.
type tickAccumulator struct {
	mu     sync.Mutex
	result TickResult
}

func newTickAccumulator() *tickAccumulator {
	return &tickAccumulator{result: TickResult{
		Sources:        make(map[string]int),
		ErrorBreakdown: make(map[string]int),
	}}
}

func (a *tickAccumulator) add(fn func(r *TickResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.result)
}

func (a *tickAccumulator) recordError(kind string) {
	a.add(func(r *TickResult) {
		r.Errors++
		r.ErrorBreakdown[kind]++
	})
	metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
}

func (a *tickAccumulator) finish() TickResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.result
	failures := r.SendFailed + r.NoToken + r.Errors
	if r.Batch != nil {
		failures += r.Batch.Failed + r.Batch.PersistErrors + r.Batch.TrackingErrors + r.Batch.InvalidPhones
	}
	switch {
	case r.Error != "":
		r.Status = model.HeartbeatStatusError
	case failures > 0:
		r.Status = model.HeartbeatStatusPartialSuccess
	default:
		r.Status = model.HeartbeatStatusSuccess
	}
	if len(r.Sources) == 0 {
		r.Sources = nil
	}
	if len(r.ErrorBreakdown) == 0 {
		r.ErrorBreakdown = nil
	}
	return r
}

// DispatchJob is one evaluation tick: resolve due calls, then create and push
// in-app sessions concurrently while telephone calls go to the batch correlator.
type DispatchJob struct {
	resolver      DueCallResolver
	sessions      SessionCreator
	credentials   service.CredentialResolver
	sender        NotificationSender
	batches       BatchDispatcher
	trackingRepo  repository.DailyCallTrackingRepository
	heartbeatRepo repository.HeartbeatRepository
	concurrency   int
	now           func() time.Time
}

func NewDispatchJob(
	resolver DueCallResolver,
	sessions SessionCreator,
	credentials service.CredentialResolver,
	sender NotificationSender,
	batches BatchDispatcher,
	trackingRepo repository.DailyCallTrackingRepository,
	heartbeatRepo repository.HeartbeatRepository,
	concurrency int,
) *DispatchJob {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DispatchJob{
		resolver:      resolver,
		sessions:      sessions,
		credentials:   credentials,
		sender:        sender,
		batches:       batches,
		trackingRepo:  trackingRepo,
		heartbeatRepo: heartbeatRepo,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

func (j *DispatchJob) Name() string { return config.JobCallDispatch }

func (j *DispatchJob) Run(ctx context.Context) TickResult {
	started := time.Now()
	acc := newTickAccumulator()

	due, err := j.resolver.Resolve(ctx, j.now())
	if err != nil {
		log.Error().Err(err).Msg("dispatch tick aborted: could not resolve due calls")
		acc.add(func(r *TickResult) { r.Error = err.Error() })
		return j.complete(ctx, acc, started)
	}

	var inApp, telephone []model.DueCall
	for _, call := range due {
		if call.CallType == model.CallTypeTelephone {
			telephone = append(telephone, call)
		} else {
			inApp = append(inApp, call)
		}
	}
	acc.add(func(r *TickResult) {
		r.Due = len(due)
		r.InApp = len(inApp)
		r.Telephone = len(telephone)
	})

	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for _, call := range inApp {
		g.Go(func() error {
			j.dispatchInApp(ctx, call, acc)
			return nil
		})
	}

	if len(telephone) > 0 {
		if j.batches == nil {
			acc.add(func(r *TickResult) {
				r.Errors += len(telephone)
				r.ErrorBreakdown["telephony_disabled"] += len(telephone)
			})
		} else {
			batch := j.batches.Dispatch(ctx, telephone)
			metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeBatched).Add(float64(batch.Recipients))
			acc.add(func(r *TickResult) { r.Batch = &batch })
		}
	}

	_ = g.Wait()
	return j.complete(ctx, acc, started)
}

func (j *DispatchJob) dispatchInApp(ctx context.Context, call model.DueCall, acc *tickAccumulator) {
	logger := log.With().
		Str("householdId", call.HouseholdID).
		Str("recipientId", call.RecipientID).
		Str("slot", string(call.Slot)).
		Str("callDate", call.CallDate).
		Logger()

	tracking, err := j.trackingRepo.Find(ctx, call.RecipientID, call.HouseholdID, call.CallDate)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read daily call tracking")
		acc.recordError("tracking_read")
		return
	}
	if tracking.Called(call.Slot) {
		acc.add(func(r *TickResult) { r.AlreadyCalled++ })
		metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeAlreadyCalled).Inc()
		return
	}

	cred, err := j.credentials.Resolve(ctx, call.HouseholdID, call.RecipientID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve delivery credential")
		acc.recordError("token_resolution")
		return
	}
	var source model.CredentialSource
	if cred != nil {
		source = cred.Source
	}

	session, err := j.sessions.CreateScheduled(ctx, call, source)
	if errors.Is(err, repository.ErrDuplicateSlot) {
		logger.Info().Msg("slot already has a session")
		acc.add(func(r *TickResult) { r.AlreadyCalled++ })
		metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeAlreadyCalled).Inc()
		j.markCalled(ctx, call, logger.Warn)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to create call session")
		acc.recordError("session_create")
		return
	}

	logger = logger.With().Str("sessionId", session.ID).Str("source", string(source)).Logger()
	if !j.markCalled(ctx, call, logger.Error) {
		acc.recordError("tracking_mark")
	}

	if cred == nil {
		logger.Warn().Msg("no delivery credential for recipient")
		acc.add(func(r *TickResult) { r.NoToken++ })
		metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeNoToken).Inc()
		return
	}
	acc.add(func(r *TickResult) { r.Sources[string(source)]++ })

	result := j.sender.Send(ctx, *cred, service.Notification{
		Type:        service.NotificationIncomingCall,
		Title:       "Time for your check-in call",
		Body:        fmt.Sprintf("Your %s check-in is ready. Tap to join.", call.Slot),
		SessionID:   session.ID,
		HouseholdID: call.HouseholdID,
		RecipientID: call.RecipientID,
		Data:        map[string]any{"slot": string(call.Slot)},
	})

	if result.Delivered {
		logger.Info().Int("attempts", result.Attempts).Bool("voip", result.VoIP).Msg("check-in call dispatched")
		acc.add(func(r *TickResult) { r.Sent++ })
		metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeSent).Inc()
		return
	}

	logger.Warn().
		Err(result.Err).
		Int("attempts", result.Attempts).
		Str("classification", string(result.Classification)).
		Msg("check-in notification could not be delivered")
	acc.add(func(r *TickResult) {
		r.SendFailed++
		r.ErrorBreakdown["push_"+string(result.Classification)]++
		if result.TokenDeactivated {
			r.TokensDeactivated++
		}
	})
	metrics.DispatchOutcomes.WithLabelValues(metrics.OutcomeSendFailed).Inc()
}

func (j *DispatchJob) markCalled(ctx context.Context, call model.DueCall, level func() *zerolog.Event) bool {
	if err := j.trackingRepo.MarkCalled(ctx, call.RecipientID, call.HouseholdID, call.CallDate, call.Slot); err != nil {
		level().Err(err).Msg("failed to mark slot as called")
		return false
	}
	return true
}

func (j *DispatchJob) complete(ctx context.Context, acc *tickAccumulator, started time.Time) TickResult {
	result := acc.finish()
	writeHeartbeat(ctx, j.heartbeatRepo, config.JobCallDispatch, result.Status, result)
	metrics.ObserveJob(config.JobCallDispatch, string(result.Status), started)

	log.Info().
		Str("status", string(result.Status)).
		Int("due", result.Due).
		Int("sent", result.Sent).
		Int("alreadyCalled", result.AlreadyCalled).
		Int("sendFailed", result.SendFailed).
		Int("errors", result.Errors).
		Dur("elapsed", time.Since(started)).
		Msg("dispatch tick finished")
	return result
}

func writeHeartbeat(ctx context.Context, repo repository.HeartbeatRepository, job string, status model.HeartbeatStatus, details any) {
	if repo == nil {
		return
	}
	if err := repo.Upsert(context.WithoutCancel(ctx), job, status, details); err != nil {
		log.Error().Err(err).Str("job", job).Msg("failed to write heartbeat")
	}
}
