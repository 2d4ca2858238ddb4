package model

import (
	"encoding/json"
	"time"
)

type CronHeartbeat struct {
	JobName   string          `db:"job_name" json:"jobName"`
	LastRun   time.Time       `db:"last_run" json:"lastRun"`
	Status    HeartbeatStatus `db:"status" json:"status"`
	Details   json.RawMessage `db:"details" json:"details"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}
