package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familycare/checkin-dispatch/internal/database"
	"github.com/familycare/checkin-dispatch/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func newSessionParams(recipientID string) model.CreateCallSessionParams {
	meta := json.RawMessage(`{"credentialSource":"device_pairing"}`)
	return model.CreateCallSessionParams{
		ID:            uuid.NewString(),
		HouseholdID:   "household-" + recipientID,
		RecipientID:   recipientID,
		Provider:      "in_app",
		Slot:          model.SlotMorning,
		CallDate:      "2026-03-02",
		ScheduledTime: time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC),
		Metadata:      &meta,
	}
}

func TestCallSessionRepository_CreateIsUniquePerSlot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()
	recipientID := uuid.NewString()

	session, err := repo.Create(ctx, newSessionParams(recipientID))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusScheduled, session.Status)

	_, err = repo.Create(ctx, newSessionParams(recipientID))
	assert.ErrorIs(t, err, ErrDuplicateSlot)

	afternoon := newSessionParams(recipientID)
	afternoon.Slot = model.SlotAfternoon
	_, err = repo.Create(ctx, afternoon)
	assert.NoError(t, err)
}

func TestCallSessionRepository_TransitionIsConditional(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCallSessionRepository(db.DB)
	ctx := context.Background()

	session, err := repo.Create(ctx, newSessionParams(uuid.NewString()))
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Second)
	callID := "call-123"
	ok, err := repo.Transition(ctx, model.TransitionParams{
		ID: session.ID, From: model.SessionStatusScheduled, To: model.SessionStatusActive,
		ProviderCallID: &callID, StartedAt: &started, At: started,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("stale from status does not apply", func(t *testing.T) {
		ok, err := repo.Transition(ctx, model.TransitionParams{
			ID: session.ID, From: model.SessionStatusScheduled, To: model.SessionStatusMissed, At: time.Now(),
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stored row reflects the first transition", func(t *testing.T) {
		found, err := repo.FindByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, found.Status)
		require.NotNil(t, found.ProviderCallID)
		assert.Equal(t, "call-123", *found.ProviderCallID)
		require.NotNil(t, found.StartedAt)
		assert.True(t, started.Equal(*found.StartedAt))
	})

	t.Run("returns nil for unknown id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestDailyCallTrackingRepository_MarkCalled(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDailyCallTrackingRepository(db.DB)
	ctx := context.Background()
	recipientID := uuid.NewString()

	tracking, err := repo.Find(ctx, recipientID, "household-1", "2026-03-02")
	require.NoError(t, err)
	assert.Nil(t, tracking)

	require.NoError(t, repo.MarkCalled(ctx, recipientID, "household-1", "2026-03-02", model.SlotMorning))
	require.NoError(t, repo.MarkCalled(ctx, recipientID, "household-1", "2026-03-02", model.SlotEvening))
	require.NoError(t, repo.MarkCalled(ctx, recipientID, "household-1", "2026-03-02", model.SlotMorning))

	tracking, err = repo.Find(ctx, recipientID, "household-1", "2026-03-02")
	require.NoError(t, err)
	assert.True(t, tracking.MorningCalled)
	assert.False(t, tracking.AfternoonCalled)
	assert.True(t, tracking.EveningCalled)

	assert.Error(t, repo.MarkCalled(ctx, recipientID, "household-1", "2026-03-02", model.Slot("night")))
}

func TestHeartbeatRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewHeartbeatRepository(db.DB)
	ctx := context.Background()
	job := "test_job_" + uuid.NewString()[:8]

	require.NoError(t, repo.Upsert(ctx, job, model.HeartbeatStatusSuccess, map[string]int{"sent": 1}))
	require.NoError(t, repo.Upsert(ctx, job, model.HeartbeatStatusPartialSuccess, map[string]int{"sent": 2}))

	hb, err := repo.Find(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.HeartbeatStatusPartialSuccess, hb.Status)
	assert.JSONEq(t, `{"sent":2}`, string(hb.Details))
}

func TestAlertRepository_CreateIsIdempotentPerSession(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAlertRepository(db.DB)
	ctx := context.Background()
	sessionID := uuid.NewString()
	params := model.CreateAlertParams{
		HouseholdID: "household-1",
		RecipientID: "recipient-1",
		SessionID:   &sessionID,
		Type:        model.AlertTypeMissedCall,
		Message:     "Missed morning check-in call on 2026-03-02",
	}

	first, err := repo.Create(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := repo.Create(ctx, params)
	require.NoError(t, err)
	assert.Nil(t, second)
}
