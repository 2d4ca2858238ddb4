package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/audit"
	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/metrics"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/telephony"
)

type BatchConfig struct {
	AgentID       string
	FromNumber    string
	DefaultRegion string
}

// BatchResult is the batch correlator's contribution to a tick's heartbeat.
type BatchResult struct {
	Groups         int      `json:"groups"`
	Submitted      int      `json:"submitted"`
	Failed         int      `json:"failed"`
	Recipients     int      `json:"recipients"`
	AlreadyCalled  int      `json:"alreadyCalled"`
	InvalidPhones  int      `json:"invalidPhones"`
	PersistErrors  int      `json:"persistErrors"`
	TrackingErrors int      `json:"trackingErrors"`
	BatchIDs       []string `json:"batchIds,omitempty"`
}

type batchMember struct {
	due   model.DueCall
	phone string
}

// BatchCorrelator submits telephone check-ins to the voice provider, one
// request per run instant, and records which recipients each batch covers.
type BatchCorrelator struct {
	db           database.TxRunner
	provider     telephony.BatchProvider
	mappingRepo  repository.BatchCallMappingRepository
	callLogRepo  repository.CallLogRepository
	trackingRepo repository.DailyCallTrackingRepository
	cfg          BatchConfig
}

func NewBatchCorrelator(
	db database.TxRunner,
	provider telephony.BatchProvider,
	mappingRepo repository.BatchCallMappingRepository,
	callLogRepo repository.CallLogRepository,
	trackingRepo repository.DailyCallTrackingRepository,
	cfg BatchConfig,
) *BatchCorrelator {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "US"
	}
	return &BatchCorrelator{
		db:           db,
		provider:     provider,
		mappingRepo:  mappingRepo,
		callLogRepo:  callLogRepo,
		trackingRepo: trackingRepo,
		cfg:          cfg,
	}
}

// Dispatch groups due calls by run instant and submits each group once. A
// group whose submission fails leaves no rows behind.
func (c *BatchCorrelator) Dispatch(ctx context.Context, due []model.DueCall) BatchResult {
	var result BatchResult

	groups := make(map[int64][]batchMember)
	for _, call := range due {
		tracking, err := c.trackingRepo.Find(ctx, call.RecipientID, call.HouseholdID, call.CallDate)
		if err != nil {
			log.Error().Err(err).Str("recipientId", call.RecipientID).Msg("failed to read daily call tracking")
			result.TrackingErrors++
			continue
		}
		if tracking.Called(call.Slot) {
			result.AlreadyCalled++
			continue
		}

		phone, err := normalizePhone(call.PhoneNumber, c.cfg.DefaultRegion)
		if err != nil {
			log.Warn().Err(err).
				Str("recipientId", call.RecipientID).
				Str("scheduleId", call.ScheduleID).
				Msg("skipping recipient with unusable phone number")
			result.InvalidPhones++
			continue
		}

		runAt := call.ScheduledAt.Unix()
		groups[runAt] = append(groups[runAt], batchMember{due: call, phone: phone})
	}

	runAts := make([]int64, 0, len(groups))
	for runAt := range groups {
		runAts = append(runAts, runAt)
	}
	sort.Slice(runAts, func(i, j int) bool { return runAts[i] < runAts[j] })

	for _, runAt := range runAts {
		result.Groups++
		c.dispatchGroup(ctx, time.Unix(runAt, 0).UTC(), groups[runAt], &result)
	}

	return result
}

func (c *BatchCorrelator) dispatchGroup(ctx context.Context, runAt time.Time, members []batchMember, result *BatchResult) {
	req := telephony.BatchRequest{
		RequestID:  uuid.NewString(),
		AgentID:    c.cfg.AgentID,
		FromNumber: c.cfg.FromNumber,
		RunAt:      runAt,
		Recipients: make([]telephony.Recipient, 0, len(members)),
	}
	for _, m := range members {
		req.Recipients = append(req.Recipients, telephony.Recipient{
			PhoneNumber: m.phone,
			Label:       batchLabel(m.due),
			Metadata: map[string]string{
				"householdId": m.due.HouseholdID,
				"recipientId": m.due.RecipientID,
				"slot":        string(m.due.Slot),
				"callDate":    m.due.CallDate,
			},
		})
	}

	submitted, err := c.provider.SubmitBatch(ctx, req)
	if err != nil {
		result.Failed++
		metrics.BatchSubmissions.WithLabelValues("failure").Inc()
		log.Error().Err(err).
			Str("provider", c.provider.Name()).
			Str("requestId", req.RequestID).
			Int("recipients", len(members)).
			Time("runAt", runAt).
			Msg("batch submission failed")
		return
	}

	err = c.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		mappingRepo := c.mappingRepo.WithTx(tx)
		callLogRepo := c.callLogRepo.WithTx(tx)
		trackingRepo := c.trackingRepo.WithTx(tx)

		for i, m := range members {
			if err := mappingRepo.Create(ctx, model.CreateBatchCallMappingParams{
				BatchID:       submitted.BatchID,
				HouseholdID:   m.due.HouseholdID,
				RecipientID:   m.due.RecipientID,
				PhoneNumber:   m.phone,
				Label:         req.Recipients[i].Label,
				Slot:          m.due.Slot,
				ScheduledTime: m.due.ScheduledAt,
			}); err != nil {
				return fmt.Errorf("create batch mapping: %w", err)
			}
			if err := callLogRepo.CreateForBatch(ctx, model.CreateBatchCallLogParams{
				BatchID:       submitted.BatchID,
				HouseholdID:   m.due.HouseholdID,
				RecipientID:   m.due.RecipientID,
				Slot:          m.due.Slot,
				ScheduledTime: m.due.ScheduledAt,
			}); err != nil {
				return fmt.Errorf("create batch call log: %w", err)
			}
			if err := trackingRepo.MarkCalled(ctx, m.due.RecipientID, m.due.HouseholdID, m.due.CallDate, m.due.Slot); err != nil {
				return fmt.Errorf("mark slot called: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// The provider already accepted the batch; the calls will still be placed.
		result.PersistErrors++
		metrics.BatchSubmissions.WithLabelValues("persist_error").Inc()
		log.Error().Err(err).
			Str("batchId", submitted.BatchID).
			Int("recipients", len(members)).
			Msg("failed to persist batch correlation")
		c.markAccepted(ctx, submitted.BatchID, members, result)
		return
	}

	result.Submitted++
	result.Recipients += len(members)
	result.BatchIDs = append(result.BatchIDs, submitted.BatchID)
	metrics.BatchSubmissions.WithLabelValues("success").Inc()

	audit.Log(ctx, audit.Event{
		Type: audit.EventBatchSubmitted,
		Details: map[string]interface{}{
			"provider":   c.provider.Name(),
			"batchId":    submitted.BatchID,
			"requestId":  req.RequestID,
			"recipients": len(members),
			"runAtUnix":  runAt.Unix(),
		},
	})
}

// markAccepted records slots of an accepted batch outside the rolled-back
// transaction so the next tick does not submit the same recipients again.
func (c *BatchCorrelator) markAccepted(ctx context.Context, batchID string, members []batchMember, result *BatchResult) {
	for _, m := range members {
		if err := c.trackingRepo.MarkCalled(ctx, m.due.RecipientID, m.due.HouseholdID, m.due.CallDate, m.due.Slot); err != nil {
			result.TrackingErrors++
			log.Error().Err(err).
				Str("batchId", batchID).
				Str("recipientId", m.due.RecipientID).
				Str("slot", string(m.due.Slot)).
				Msg("failed to mark slot of accepted batch; recipient may be called again")
		}
	}
}

// batchLabel is echoed back by the provider in per-call webhooks.
func batchLabel(call model.DueCall) string {
	return fmt.Sprintf("%s:%s", call.RecipientID, call.Slot)
}

func normalizePhone(raw, region string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("phone number %q is not valid", raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
