package database

import (
	"context"
	"fmt"
)

// Schema creates the tables owned by the dispatch subsystem. The unique
// indexes are the idempotency keys every upsert relies on.
const Schema = `
CREATE TABLE IF NOT EXISTS call_sessions (
	id               UUID PRIMARY KEY,
	household_id     TEXT NOT NULL,
	recipient_id     TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'scheduled',
	provider         TEXT NOT NULL,
	provider_call_id TEXT,
	slot             TEXT NOT NULL,
	call_date        TEXT NOT NULL,
	scheduled_time   TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	ended_at         TIMESTAMPTZ,
	duration_seconds INTEGER,
	metadata         JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS call_sessions_recipient_slot_uniq
	ON call_sessions (recipient_id, call_date, slot);
CREATE INDEX IF NOT EXISTS call_sessions_status_idx ON call_sessions (status, scheduled_time);

CREATE TABLE IF NOT EXISTS call_logs (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_id       UUID,
	batch_id         TEXT,
	household_id     TEXT NOT NULL,
	recipient_id     TEXT NOT NULL,
	call_type        TEXT NOT NULL,
	slot             TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	scheduled_time   TIMESTAMPTZ NOT NULL,
	duration_seconds INTEGER,
	summary          TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS call_logs_session_uniq ON call_logs (session_id);
CREATE UNIQUE INDEX IF NOT EXISTS call_logs_batch_recipient_uniq ON call_logs (batch_id, recipient_id);

CREATE TABLE IF NOT EXISTS daily_call_tracking (
	recipient_id     TEXT NOT NULL,
	household_id     TEXT NOT NULL,
	call_date        TEXT NOT NULL,
	morning_called   BOOLEAN NOT NULL DEFAULT FALSE,
	afternoon_called BOOLEAN NOT NULL DEFAULT FALSE,
	evening_called   BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (recipient_id, household_id, call_date)
);

CREATE TABLE IF NOT EXISTS batch_call_mappings (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	batch_id       TEXT NOT NULL,
	household_id   TEXT NOT NULL,
	recipient_id   TEXT NOT NULL,
	phone_number   TEXT NOT NULL,
	label          TEXT NOT NULL,
	slot           TEXT NOT NULL,
	scheduled_time TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (batch_id, recipient_id)
);

CREATE TABLE IF NOT EXISTS cron_heartbeats (
	job_name   TEXT PRIMARY KEY,
	last_run   TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL,
	details    JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS alerts (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	household_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	session_id   UUID,
	type         TEXT NOT NULL,
	message      TEXT NOT NULL,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS alerts_session_type_uniq ON alerts (session_id, type);
`

func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
