package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/audit"
	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/util"
)

const CallbackSignatureHeader = "X-Callback-Signature"

// CallbackSignatureMiddleware verifies that status callbacks carry a hex
// HMAC-SHA256 of the raw body under the shared signing secret.
type CallbackSignatureMiddleware struct {
	secret string
}

func NewCallbackSignatureMiddleware(secret string) *CallbackSignatureMiddleware {
	return &CallbackSignatureMiddleware{secret: secret}
}

func (m *CallbackSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("callback signature verification bypassed: CALLBACK_SIGNING_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get(CallbackSignatureHeader)
		if signature == "" {
			m.reject(w, r, "missing signature header")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("callback signature middleware: failed to read body")
			writeError(w, apperrors.ValidationError("Failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256(m.secret, string(body))
		if !util.ConstantTimeEqual(computed, signature) {
			m.reject(w, r, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CallbackSignatureMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	log.Warn().Str("path", r.URL.Path).Msgf("callback signature middleware: %s", reason)
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventSignatureFailure,
		Details: map[string]interface{}{"reason": reason, "path": r.URL.Path},
	})
	writeError(w, apperrors.InvalidSignature())
}
