package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/model"
)

type HeartbeatRepository interface {
	Upsert(ctx context.Context, jobName string, status model.HeartbeatStatus, details any) error
	Find(ctx context.Context, jobName string) (*model.CronHeartbeat, error)
	List(ctx context.Context) ([]model.CronHeartbeat, error)
}

type heartbeatRepo struct {
	db *sqlx.DB
}

func NewHeartbeatRepository(db *sqlx.DB) HeartbeatRepository {
	return &heartbeatRepo{db: db}
}

func (r *heartbeatRepo) Upsert(ctx context.Context, jobName string, status model.HeartbeatStatus, details any) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal heartbeat details: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cron_heartbeats (job_name, last_run, status, details, updated_at)
		VALUES ($1, $2, $3, $4, $2)
		ON CONFLICT (job_name) DO UPDATE SET
			last_run = EXCLUDED.last_run,
			status = EXCLUDED.status,
			details = EXCLUDED.details,
			updated_at = EXCLUDED.updated_at
	`, jobName, now, status, data)
	return err
}

func (r *heartbeatRepo) Find(ctx context.Context, jobName string) (*model.CronHeartbeat, error) {
	var hb model.CronHeartbeat
	err := r.db.GetContext(ctx, &hb, `
		SELECT * FROM cron_heartbeats WHERE job_name = $1
	`, jobName)
	return HandleNotFound(&hb, err)
}

func (r *heartbeatRepo) List(ctx context.Context) ([]model.CronHeartbeat, error) {
	var heartbeats []model.CronHeartbeat
	err := r.db.SelectContext(ctx, &heartbeats, `
		SELECT * FROM cron_heartbeats ORDER BY job_name
	`)
	return heartbeats, err
}
