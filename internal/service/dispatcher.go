package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/audit"
	"github.com/familycare/checkin-dispatch/internal/config"
	"github.com/familycare/checkin-dispatch/internal/metrics"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/push"
	"github.com/familycare/checkin-dispatch/internal/repository"
	"github.com/familycare/checkin-dispatch/internal/retry"
	"github.com/familycare/checkin-dispatch/internal/util"
)

const (
	androidCallChannel = "checkin-calls"
	iosCallCategory    = "INCOMING_CALL"
	voipExpiry         = 60 * time.Second

	NotificationIncomingCall    = "incoming_call"
	NotificationHouseholdUpdate = "household_update"
)

// PushSender is the gateway surface the dispatcher needs.
type PushSender interface {
	Send(ctx context.Context, msg push.Message) error
	SendVoIP(ctx context.Context, msg push.VoIPMessage) error
	VoIPEnabled() bool
}

// CredentialInvalidator retires a credential the gateway reported as dead.
type CredentialInvalidator interface {
	Invalidate(ctx context.Context, cred *model.Credential, voip bool) error
}

type Notification struct {
	Type        string
	Title       string
	Body        string
	SessionID   string
	HouseholdID string
	RecipientID string
	Data        map[string]any
}

type DeliveryResult struct {
	Delivered        bool
	Attempts         int
	VoIP             bool
	Classification   push.Kind
	TokenDeactivated bool
	Err              error
}

type Dispatcher struct {
	sender        PushSender
	invalidator   CredentialInvalidator
	pushTokenRepo repository.PushTokenRepository
	policy        retry.Policy
}

func NewDispatcher(
	sender PushSender,
	invalidator CredentialInvalidator,
	pushTokenRepo repository.PushTokenRepository,
) *Dispatcher {
	return &Dispatcher{
		sender:        sender,
		invalidator:   invalidator,
		pushTokenRepo: pushTokenRepo,
		policy:        DefaultPushPolicy(),
	}
}

func DefaultPushPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    config.PushMaxAttempts,
		BaseDelay:      config.PushBaseDelay,
		MaxDelay:       config.PushMaxDelay,
		AttemptTimeout: config.PushAttemptTimeout,
		Retryable:      push.IsRetryable,
	}
}

// WithPolicy replaces the retry policy. Used by tests to avoid real sleeps.
func (d *Dispatcher) WithPolicy(p retry.Policy) *Dispatcher {
	d.policy = p
	return d
}

// Send delivers n to cred. Once started, the retry loop is detached from the
// caller's cancellation and runs until success, exhaustion, or a permanent error.
func (d *Dispatcher) Send(ctx context.Context, cred model.Credential, n Notification) DeliveryResult {
	ctx = context.WithoutCancel(ctx)
	result := DeliveryResult{VoIP: d.useVoIP(cred)}

	attempts, err := retry.Do(ctx, d.policy, func(attemptCtx context.Context, attempt int) error {
		started := time.Now()
		err := d.deliver(attemptCtx, cred, n, result.VoIP)
		d.recordAttempt(ctx, cred, n, result.VoIP, attempt, err, time.Since(started))
		return err
	})

	result.Attempts = attempts
	if err == nil {
		result.Delivered = true
		return result
	}

	result.Err = err
	result.Classification = push.Classify(err)

	if push.IsTokenInvalid(err) && d.invalidator != nil {
		if invErr := d.invalidator.Invalidate(ctx, &cred, result.VoIP); invErr != nil {
			log.Error().Err(invErr).
				Str("source", string(cred.Source)).
				Str("recordId", cred.RecordID).
				Msg("failed to deactivate rejected token")
		} else {
			result.TokenDeactivated = true
		}
	}

	return result
}

// NotifyHousehold sends a standard push to every active token in the household
// except excludeToken. It returns the number of successful deliveries.
func (d *Dispatcher) NotifyHousehold(ctx context.Context, householdID, excludeToken string, n Notification) int {
	tokens, err := d.pushTokenRepo.FindActiveByHousehold(ctx, householdID)
	if err != nil {
		log.Error().Err(err).Str("householdId", householdID).Msg("failed to load household tokens")
		return 0
	}

	delivered := 0
	seen := make(map[string]bool)
	for i := range tokens {
		token := &tokens[i]
		if token.Token == "" || seen[token.Token] {
			continue
		}
		if excludeToken != "" && (token.Token == excludeToken || (token.VoIPToken != nil && *token.VoIPToken == excludeToken)) {
			continue
		}
		seen[token.Token] = true

		cred := credentialFromToken(token)
		cred.Source = model.SourceHouseholdMember
		// member updates never ring the device
		cred.VoIPToken = ""

		if res := d.Send(ctx, *cred, n); res.Delivered {
			delivered++
		}
	}
	return delivered
}

// useVoIP routes iOS VoIP credentials through the standard gateway when no
// VoIP endpoint is configured and a standard token is available.
func (d *Dispatcher) useVoIP(cred model.Credential) bool {
	if !cred.UsesVoIP() {
		return false
	}
	return d.sender.VoIPEnabled() || cred.PushToken == ""
}

func (d *Dispatcher) deliver(ctx context.Context, cred model.Credential, n Notification, voip bool) error {
	data := notificationData(n)

	if voip {
		data["title"] = n.Title
		data["body"] = n.Body
		return d.sender.SendVoIP(ctx, push.VoIPMessage{
			DeviceToken: cred.VoIPToken,
			Payload:     data,
			Expiration:  time.Now().Add(voipExpiry),
		})
	}

	msg := push.Message{
		To:       cred.PushToken,
		Title:    n.Title,
		Body:     n.Body,
		Data:     data,
		Priority: "high",
		Sound:    "default",
	}
	switch cred.Platform {
	case model.PlatformAndroid:
		msg.ChannelID = androidCallChannel
	case model.PlatformIOS:
		if n.Type == NotificationIncomingCall {
			msg.Category = iosCallCategory
		}
	}
	return d.sender.Send(ctx, msg)
}

func (d *Dispatcher) recordAttempt(ctx context.Context, cred model.Credential, n Notification, voip bool, attempt int, err error, elapsed time.Duration) {
	classification := "success"
	if err != nil {
		classification = string(push.Classify(err))
	}
	metrics.PushAttempts.WithLabelValues(string(cred.Platform), classification).Inc()

	details := map[string]interface{}{
		"platform":       string(cred.Platform),
		"attempt":        attempt,
		"classification": classification,
		"voip":           voip,
		"source":         string(cred.Source),
		"token":          util.MaskToken(tokenFor(cred, voip)),
		"elapsed":        elapsed,
	}
	if err != nil {
		details["error"] = err
	}
	audit.Log(ctx, audit.Event{
		Type:        audit.EventDeliveryAttempt,
		HouseholdID: n.HouseholdID,
		RecipientID: n.RecipientID,
		SessionID:   n.SessionID,
		Details:     details,
	})
}

func notificationData(n Notification) map[string]any {
	data := make(map[string]any, len(n.Data)+4)
	for k, v := range n.Data {
		data[k] = v
	}
	data["type"] = n.Type
	if n.SessionID != "" {
		data["sessionId"] = n.SessionID
	}
	if n.HouseholdID != "" {
		data["householdId"] = n.HouseholdID
	}
	if n.RecipientID != "" {
		data["recipientId"] = n.RecipientID
	}
	return data
}

func tokenFor(cred model.Credential, voip bool) string {
	if voip {
		return cred.VoIPToken
	}
	return cred.PushToken
}
