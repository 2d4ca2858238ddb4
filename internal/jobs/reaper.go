package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/config"
	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/metrics"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/service"
)

type SessionReaper interface {
	Reap(ctx context.Context, session *model.CallSession, target model.SessionStatus, duration *int) (*service.TransitionResult, error)
}

type SweepResult struct {
	Examined     int    `json:"examined"`
	Transitioned int    `json:"transitioned"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	Error        string `json:"error,omitempty"`
}

type ReapResult struct {
	Missed         SweepResult           `json:"missed"`
	Completed      SweepResult           `json:"completed"`
	AlertsCreated  int                   `json:"alertsCreated"`
	AlertErrors    int                   `json:"alertErrors"`
	PairingsPurged int64                 `json:"pairingsPurged"`
	PairingError   string                `json:"pairingError,omitempty"`
	Status         model.HeartbeatStatus `json:"-"`
}

// ReaperJob force-terminates sessions that never reached a terminal state and
// purges expired pairing codes. The three sweeps run independently.
type ReaperJob struct {
	sessionRepo   repository.CallSessionRepository
	alertRepo     repository.AlertRepository
	pairingRepo   repository.DevicePairingRepository
	heartbeatRepo repository.HeartbeatRepository
	reaper        SessionReaper
	now           func() time.Time
}

func NewReaperJob(
	sessionRepo repository.CallSessionRepository,
	alertRepo repository.AlertRepository,
	pairingRepo repository.DevicePairingRepository,
	heartbeatRepo repository.HeartbeatRepository,
	reaper SessionReaper,
) *ReaperJob {
	return &ReaperJob{
		sessionRepo:   sessionRepo,
		alertRepo:     alertRepo,
		pairingRepo:   pairingRepo,
		heartbeatRepo: heartbeatRepo,
		reaper:        reaper,
		now:           time.Now,
	}
}

func (j *ReaperJob) Name() string { return config.JobSessionReaper }

func (j *ReaperJob) Run(ctx context.Context) ReapResult {
	started := time.Now()
	now := j.now()
	var result ReapResult

	result.Missed = j.runSweep(ctx, metrics.SweepMissed,
		func(ctx context.Context) ([]model.CallSession, error) {
			return j.sessionRepo.FindUnansweredBefore(ctx, now.Add(-config.ReaperMissedGrace))
		},
		func(ctx context.Context, s *model.CallSession) (bool, error) {
			res, err := j.reaper.Reap(ctx, s, model.SessionStatusMissed, nil)
			if err != nil || !res.Changed {
				return false, err
			}
			j.createMissedAlert(ctx, s, &result)
			return true, nil
		})

	ceiling := int(config.ReaperActiveCeiling / time.Second)
	result.Completed = j.runSweep(ctx, metrics.SweepCompleted,
		func(ctx context.Context) ([]model.CallSession, error) {
			return j.sessionRepo.FindActiveStartedBefore(ctx, now.Add(-config.ReaperActiveCeiling))
		},
		func(ctx context.Context, s *model.CallSession) (bool, error) {
			res, err := j.reaper.Reap(ctx, s, model.SessionStatusCompleted, &ceiling)
			if err != nil {
				return false, err
			}
			return res.Changed, nil
		})

	purged, err := j.pairingRepo.DeleteExpired(ctx, config.PairingPurgeGrace)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge expired pairings")
		result.PairingError = err.Error()
	} else {
		result.PairingsPurged = purged
		if purged > 0 {
			metrics.ReaperTransitions.WithLabelValues(metrics.SweepPairings).Add(float64(purged))
			log.Info().Int64("count", purged).Msg("purged expired pairings")
		}
	}

	result.Status = reapStatus(result)
	writeHeartbeat(ctx, j.heartbeatRepo, config.JobSessionReaper, result.Status, result)
	metrics.ObserveJob(config.JobSessionReaper, string(result.Status), started)

	log.Info().
		Str("status", string(result.Status)).
		Int("missed", result.Missed.Transitioned).
		Int("completed", result.Completed.Transitioned).
		Int64("pairingsPurged", result.PairingsPurged).
		Dur("elapsed", time.Since(started)).
		Msg("session reaper finished")
	return result
}

// runSweep loads candidates and applies fn to each; a failing item is counted
// and the sweep moves on.
func (j *ReaperJob) runSweep(
	ctx context.Context,
	name string,
	load func(context.Context) ([]model.CallSession, error),
	fn func(context.Context, *model.CallSession) (bool, error),
) SweepResult {
	var sweep SweepResult

	sessions, err := load(ctx)
	if err != nil {
		log.Error().Err(err).Str("sweep", name).Msg("failed to load sessions for sweep")
		sweep.Error = err.Error()
		return sweep
	}

	for i := range sessions {
		s := &sessions[i]
		sweep.Examined++

		changed, err := fn(ctx, s)
		switch {
		case apperrors.GetCode(err) == apperrors.ErrCodeInvalidTransition:
			// a callback moved the session first
			sweep.Skipped++
		case err != nil:
			log.Error().Err(err).Str("sweep", name).Str("sessionId", s.ID).Msg("failed to reap session")
			sweep.Failed++
		case changed:
			sweep.Transitioned++
			metrics.ReaperTransitions.WithLabelValues(name).Inc()
		default:
			sweep.Skipped++
		}
	}
	return sweep
}

func (j *ReaperJob) createMissedAlert(ctx context.Context, s *model.CallSession, result *ReapResult) {
	sessionID := s.ID
	alert, err := j.alertRepo.Create(ctx, model.CreateAlertParams{
		HouseholdID: s.HouseholdID,
		RecipientID: s.RecipientID,
		SessionID:   &sessionID,
		Type:        model.AlertTypeMissedCall,
		Message:     fmt.Sprintf("Missed %s check-in call on %s", s.Slot, s.CallDate),
	})
	if err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Msg("failed to create missed-call alert")
		result.AlertErrors++
		return
	}
	if alert != nil {
		result.AlertsCreated++
	}
}

func reapStatus(r ReapResult) model.HeartbeatStatus {
	sweepErrors := 0
	for _, msg := range []string{r.Missed.Error, r.Completed.Error, r.PairingError} {
		if msg != "" {
			sweepErrors++
		}
	}
	switch {
	case sweepErrors == 3:
		return model.HeartbeatStatusError
	case sweepErrors > 0 || r.Missed.Failed > 0 || r.Completed.Failed > 0 || r.AlertErrors > 0:
		return model.HeartbeatStatusPartialSuccess
	}
	return model.HeartbeatStatusSuccess
}
