package push

import (
	"context"
	"errors"
	"fmt"
	"net"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/sideshow/apns2"
)

// Kind classifies a delivery failure.
type Kind string

const (
	KindRateLimited  Kind = "rate_limited"
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindUnauthorized Kind = "unauthorized"
	KindInvalidToken Kind = "invalid_token"
	KindMalformed    Kind = "malformed"
	KindUnknown      Kind = "unknown"
)

type Error struct {
	Kind       Kind
	StatusCode int
	Reason     string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("push %s: %s (cause: %v)", e.Kind, e.Reason, e.cause)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("push %s: %s (status %d)", e.Kind, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("push %s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, status int, reason string) *Error {
	return &Error{Kind: kind, StatusCode: status, Reason: reason}
}

// Classify returns the failure kind of err. Transport errors that were not
// produced by this package are mapped to timeout or network.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var pushErr *Error
	if errors.As(err, &pushErr) {
		return pushErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable is true for rate limiting and transport failures only.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindRateLimited, KindNetwork, KindTimeout:
		return true
	}
	return false
}

// IsTokenInvalid reports that the gateway no longer accepts the target token.
func IsTokenInvalid(err error) bool {
	return Classify(err) == KindInvalidToken
}

func transportError(err error) *Error {
	kind := KindNetwork
	if Classify(err) == KindTimeout {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Reason: "request failed", cause: err}
}

// kindForStatus maps an HTTP status from either gateway onto a failure kind.
func kindForStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 401 || status == 403:
		return KindUnauthorized
	case status == 410:
		return KindInvalidToken
	case status == 400 || status == 413:
		return KindMalformed
	case status >= 500:
		return KindNetwork
	}
	return KindUnknown
}

// kindForReason maps gateway error reasons (Expo ticket errors and APNs reasons).
func kindForReason(reason string) Kind {
	switch reason {
	case expo.ErrorDeviceNotRegistered, apns2.ReasonUnregistered, apns2.ReasonBadDeviceToken,
		apns2.ReasonDeviceTokenNotForTopic, "InvalidRegistration":
		return KindInvalidToken
	case expo.ErrorMessageRateExceeded, apns2.ReasonTooManyRequests, apns2.ReasonTooManyProviderTokenUpdates:
		return KindRateLimited
	case "InvalidCredentials", apns2.ReasonInvalidProviderToken, apns2.ReasonExpiredProviderToken,
		apns2.ReasonMissingProviderToken, apns2.ReasonForbidden:
		return KindUnauthorized
	case expo.ErrorMessageTooBig, apns2.ReasonPayloadTooLarge, apns2.ReasonBadTopic, apns2.ReasonMissingTopic:
		return KindMalformed
	case apns2.ReasonInternalServerError, apns2.ReasonServiceUnavailable, apns2.ReasonShutdown:
		return KindNetwork
	}
	return KindUnknown
}
