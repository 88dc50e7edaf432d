package database

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. Real migration tooling is a
// deployment concern; the engine only needs the tables to exist.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id             BIGSERIAL PRIMARY KEY,
	user_id        UUID NOT NULL,
	text           TEXT NOT NULL,
	root_id        BIGINT,
	parent_id      BIGINT,
	task_key       TEXT,
	commitment_id  BIGINT,
	event_type     TEXT,
	action_context JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_user ON entries (user_id, id);

CREATE TABLE IF NOT EXISTS commitments (
	user_id         UUID NOT NULL,
	origin_entry_id BIGINT NOT NULL,
	version         INT NOT NULL,
	content         TEXT NOT NULL,
	strength        TEXT NOT NULL,
	horizon_text    TEXT NOT NULL DEFAULT '',
	horizon_type    TEXT NOT NULL,
	horizon_value   TEXT,
	status          TEXT NOT NULL,
	metrics         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, origin_entry_id, version)
);

CREATE TABLE IF NOT EXISTS tasks (
	user_id             UUID NOT NULL,
	content_key         TEXT NOT NULL,
	version             INT NOT NULL,
	content             TEXT NOT NULL,
	status              TEXT NOT NULL,
	commitment_entry_id BIGINT,
	created_at          TIMESTAMPTZ NOT NULL,
	completed_at        TIMESTAMPTZ,
	PRIMARY KEY (user_id, content_key, version)
);

CREATE TABLE IF NOT EXISTS signals (
	user_id    UUID NOT NULL,
	entry_id   BIGINT NOT NULL,
	key        TEXT NOT NULL,
	version    INT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, entry_id, key, version)
);

CREATE TABLE IF NOT EXISTS feed_snapshots (
	user_id                 UUID NOT NULL,
	feed_version            BIGINT NOT NULL,
	items                   JSONB NOT NULL,
	last_processed_entry_id BIGINT NOT NULL,
	cache_metrics           JSONB NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, feed_version)
);

CREATE TABLE IF NOT EXISTS activity_records (
	user_id          UUID PRIMARY KEY,
	last_activity_at TIMESTAMPTZ NOT NULL,
	capture_times    JSONB NOT NULL,
	count_24h        INT NOT NULL DEFAULT 0,
	count_7d         INT NOT NULL DEFAULT 0,
	count_30d        INT NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule_state (
	user_id            UUID PRIMARY KEY,
	needs_regeneration BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	run_id     UUID NOT NULL,
	step_name  TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, step_name)
);
`

// EnsureSchema creates all engine tables if they do not exist.
func EnsureSchema(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
