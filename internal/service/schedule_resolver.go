package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/repository"
)

const minutesPerDay = 24 * 60

// ScheduleResolver turns active schedules into the calls due in the window
// ending at now. It performs no writes.
type ScheduleResolver struct {
	scheduleRepo repository.ScheduleRepository
	window       time.Duration
}

func NewScheduleResolver(scheduleRepo repository.ScheduleRepository, window time.Duration) *ScheduleResolver {
	return &ScheduleResolver{
		scheduleRepo: scheduleRepo,
		window:       window,
	}
}

// Resolve returns every slot whose local instant falls in (now-window, now].
// A store error is returned as-is so the caller can abort the tick.
func (r *ScheduleResolver) Resolve(ctx context.Context, now time.Time) ([]model.DueCall, error) {
	schedules, err := r.scheduleRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("find active schedules: %w", err)
	}

	var due []model.DueCall
	for i := range schedules {
		s := &schedules[i]
		if !s.IsActive {
			continue
		}

		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			log.Warn().
				Str("scheduleId", s.ID).
				Str("timezone", s.Timezone).
				Msg("skipping schedule with unknown timezone")
			continue
		}

		due = append(due, r.dueSlots(s, now, loc)...)
	}

	return due, nil
}

func (r *ScheduleResolver) dueSlots(s *model.Schedule, now time.Time, loc *time.Location) []model.DueCall {
	var due []model.DueCall
	local := now.In(loc)
	windowStart := now.Add(-r.window)

	for _, slot := range model.Slots {
		clock := s.SlotTime(slot)
		if clock == nil {
			continue
		}
		minute, err := parseClock(*clock)
		if err != nil {
			log.Warn().Str("scheduleId", s.ID).Str("slot", string(slot)).Err(err).Msg("skipping malformed slot time")
			continue
		}

		// The window can straddle local midnight, so yesterday's instant is a candidate too.
		for _, dayOffset := range []int{0, -1} {
			y, m, d := local.AddDate(0, 0, dayOffset).Date()
			instant := time.Date(y, m, d, minute/60, minute%60, 0, 0, loc)
			if !instant.After(windowStart) || instant.After(now) {
				continue
			}
			if !activeOn(s.ActiveDays, instant.Weekday()) {
				continue
			}
			if s.QuietStart != nil && s.QuietEnd != nil && inQuietHours(minute, *s.QuietStart, *s.QuietEnd) {
				continue
			}

			call := model.DueCall{
				ScheduleID:  s.ID,
				HouseholdID: s.HouseholdID,
				RecipientID: s.RecipientID,
				Slot:        slot,
				ScheduledAt: instant,
				CallDate:    instant.Format("2006-01-02"),
				CallType:    s.CallType,
			}
			if s.PhoneNumber != nil {
				call.PhoneNumber = *s.PhoneNumber
			}
			due = append(due, call)
		}
	}
	return due
}

// parseClock converts "HH:MM" (or the "HH:MM:SS" form postgres TIME columns
// render as) to minutes past midnight.
func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}

// activeOn reports whether weekday is enabled in mask (bit 0 = Sunday).
// An empty mask means every day.
func activeOn(mask int, weekday time.Weekday) bool {
	if mask == 0 {
		return true
	}
	return mask&(1<<uint(weekday)) != 0
}

// inQuietHours reports whether minute lies in [start, end). A window whose end
// precedes its start wraps past midnight. Unparseable bounds disable the window.
func inQuietHours(minute int, start, end string) bool {
	startMin, err := parseClock(start)
	if err != nil {
		return false
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false
	}
	if startMin == endMin {
		return false
	}
	minute %= minutesPerDay
	if startMin < endMin {
		return minute >= startMin && minute < endMin
	}
	return minute >= startMin || minute < endMin
}
