package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/util"
)

type HeartbeatReader interface {
	Find(ctx context.Context, jobName string) (*model.CronHeartbeat, error)
	List(ctx context.Context) ([]model.CronHeartbeat, error)
}

var heartbeatStatuses = []string{
	string(model.HeartbeatStatusSuccess),
	string(model.HeartbeatStatusPartialSuccess),
	string(model.HeartbeatStatusError),
}

type HeartbeatHandler struct {
	heartbeats HeartbeatReader
}

func NewHeartbeatHandler(heartbeats HeartbeatReader) *HeartbeatHandler {
	return &HeartbeatHandler{heartbeats: heartbeats}
}

func (h *HeartbeatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{jobName}", h.Get)
	return r
}

// GET /v1/heartbeats?status=
func (h *HeartbeatHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if !util.IsValidEnum(status, heartbeatStatuses) {
		writeError(w, apperrors.InvalidInput("status", "must be success, partial_success or error"))
		return
	}

	heartbeats, err := h.heartbeats.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list heartbeats")
		writeError(w, apperrors.Database(err))
		return
	}

	filtered := make([]model.CronHeartbeat, 0, len(heartbeats))
	for _, hb := range heartbeats {
		if status == "" || string(hb.Status) == status {
			filtered = append(filtered, hb)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"heartbeats": filtered})
}

// GET /v1/heartbeats/{jobName}
func (h *HeartbeatHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "jobName")

	hb, err := h.heartbeats.Find(r.Context(), jobName)
	if err != nil {
		log.Error().Err(err).Str("job", jobName).Msg("failed to load heartbeat")
		writeError(w, apperrors.Database(err))
		return
	}
	if hb == nil {
		writeError(w, apperrors.NotFound("Heartbeat"))
		return
	}

	writeJSON(w, http.StatusOK, hb)
}
