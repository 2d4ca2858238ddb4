package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/familycare/checkin-dispatch/internal/errors"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/service"
	"github.com/familycare/checkin-dispatch/internal/util"
)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, params service.UpdateStatusParams) (*service.TransitionResult, error)
}

type CallSessionHandler struct {
	sessions StatusUpdater
}

func NewCallSessionHandler(sessions StatusUpdater) *CallSessionHandler {
	return &CallSessionHandler{sessions: sessions}
}

func (h *CallSessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{sessionID}/status", h.UpdateStatus)
	return r
}

type updateStatusRequest struct {
	Status          string  `json:"status"`
	CallUUID        *string `json:"callUuid"`
	DurationSeconds *int    `json:"durationSeconds"`
}

type updateStatusResponse struct {
	Session        *model.CallSession  `json:"session"`
	PreviousStatus model.SessionStatus `json:"previousStatus"`
	Changed        bool                `json:"changed"`
}

// POST /v1/call-sessions/{sessionID}/status
func (h *CallSessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a UUID"))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if req.Status == "" {
		writeError(w, apperrors.MissingRequired("status"))
		return
	}
	if req.CallUUID != nil && *req.CallUUID == "" {
		req.CallUUID = nil
	}

	result, err := h.sessions.UpdateStatus(r.Context(), service.UpdateStatusParams{
		SessionID:       sessionID,
		Status:          model.SessionStatus(req.Status),
		CallUUID:        req.CallUUID,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to update call session status")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateStatusResponse{
		Session:        result.Session,
		PreviousStatus: result.Previous,
		Changed:        result.Changed,
	})
}
