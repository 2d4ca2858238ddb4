package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/model"
)

type ScheduleRepository interface {
	FindActive(ctx context.Context) ([]model.Schedule, error)
}

type scheduleRepo struct {
	db *sqlx.DB
}

func NewScheduleRepository(db *sqlx.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

// FindActive returns every active schedule that has at least one slot set.
// Slot and quiet-hour evaluation happens per timezone in the resolver.
func (r *scheduleRepo) FindActive(ctx context.Context) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := r.db.SelectContext(ctx, &schedules, `
		SELECT s.id, s.household_id, s.recipient_id,
			s.morning_time, s.afternoon_time, s.evening_time,
			s.timezone, s.is_active, s.call_type,
			s.quiet_start, s.quiet_end, s.active_days,
			r.phone_number, s.created_at, s.updated_at
		FROM call_schedules s
		JOIN care_recipients r ON r.id = s.recipient_id
		WHERE s.is_active = TRUE
		AND (s.morning_time IS NOT NULL OR s.afternoon_time IS NOT NULL OR s.evening_time IS NOT NULL)
		ORDER BY s.household_id, s.recipient_id
	`)
	return schedules, err
}
