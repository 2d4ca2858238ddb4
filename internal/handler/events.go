package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/sse"
	"github.com/familycare/checkin-dispatch/internal/util"
)

type EventSubscriber interface {
	Subscribe(householdID string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// EventsHandler streams a household's call lifecycle events.
type EventsHandler struct {
	broker            EventSubscriber
	heartbeatInterval time.Duration
}

func NewEventsHandler(broker EventSubscriber) *EventsHandler {
	return &EventsHandler{
		broker:            broker,
		heartbeatInterval: sse.HeartbeatInterval,
	}
}

// GET /v1/households/{householdID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "householdID")
	if !util.IsValidUUID(householdID) {
		writeError(w, apperrors.InvalidInput("householdId", "must be a UUID"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(householdID)
	defer h.broker.Unsubscribe(client)

	logger := log.With().Str("householdId", householdID).Logger()
	logger.Info().Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"householdId": householdID}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sse connection closed by client")
			return

		case <-client.Done:
			logger.Info().Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				logger.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				logger.Debug().Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
