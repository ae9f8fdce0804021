// Package store is the PostgreSQL persistence layer. A single
// pgxpool.Pool backs every operation; activities acquire connections per
// call, so forked workers never share a connection across process
// boundaries.
//
// Two rules are enforced here rather than in callers:
//   - webvtt is always regenerated from topics inside UpdateTopics.
//   - partial task outputs live in the transcript's events log keyed by
//     workflow run id, so a force-replay can inspect prior runs.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscript = `
CREATE TABLE IF NOT EXISTS transcript (
    id               TEXT         PRIMARY KEY,
    status           TEXT         NOT NULL DEFAULT 'idle',
    title            TEXT         NOT NULL DEFAULT '',
    short_summary    TEXT         NOT NULL DEFAULT '',
    long_summary     TEXT         NOT NULL DEFAULT '',
    webvtt           TEXT         NOT NULL DEFAULT '',
    duration         DOUBLE PRECISION NOT NULL DEFAULT 0,
    source_language  TEXT         NOT NULL DEFAULT '',
    target_language  TEXT         NOT NULL DEFAULT '',
    topics           JSONB        NOT NULL DEFAULT '[]',
    participants     JSONB        NOT NULL DEFAULT '[]',
    events           JSONB        NOT NULL DEFAULT '[]',
    waveform         JSONB        NOT NULL DEFAULT '[]',
    recording_id     TEXT,
    room_id          TEXT,
    user_id          TEXT,
    workflow_run_id  TEXT         NOT NULL DEFAULT '',
    zulip_message_id BIGINT,
    audio_deleted    BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_status ON transcript (status);
CREATE INDEX IF NOT EXISTS idx_transcript_user ON transcript (user_id);
CREATE INDEX IF NOT EXISTS idx_transcript_created ON transcript (created_at);
`

const ddlRecording = `
CREATE TABLE IF NOT EXISTS recording (
    id          TEXT         PRIMARY KEY,
    bucket_name TEXT         NOT NULL,
    object_key  TEXT         NOT NULL,
    track_keys  JSONB        NOT NULL DEFAULT '[]',
    recorded_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    status      TEXT         NOT NULL DEFAULT 'pending',
    meeting_id  TEXT,
    UNIQUE (bucket_name, object_key)
);

CREATE INDEX IF NOT EXISTS idx_recording_meeting ON recording (meeting_id);
`

const ddlMeeting = `
CREATE TABLE IF NOT EXISTS meeting (
    id         TEXT         PRIMARY KEY,
    room_name  TEXT         NOT NULL,
    room_url   TEXT         NOT NULL DEFAULT '',
    start_date TIMESTAMPTZ  NOT NULL DEFAULT now(),
    end_date   TIMESTAMPTZ,
    user_id    TEXT,
    room_id    TEXT
);

CREATE INDEX IF NOT EXISTS idx_meeting_room_name ON meeting (room_name);
`

const ddlRoom = `
CREATE TABLE IF NOT EXISTS room (
    id                TEXT     PRIMARY KEY,
    name              TEXT     NOT NULL UNIQUE,
    user_id           TEXT,
    webhook_url       TEXT     NOT NULL DEFAULT '',
    webhook_secret    TEXT     NOT NULL DEFAULT '',
    is_locked         BOOLEAN  NOT NULL DEFAULT FALSE,
    recording_type    TEXT     NOT NULL DEFAULT 'cloud',
    recording_trigger TEXT     NOT NULL DEFAULT 'automatic-2nd-participant',
    zulip_auto_post   BOOLEAN  NOT NULL DEFAULT FALSE,
    zulip_stream      TEXT     NOT NULL DEFAULT '',
    zulip_topic       TEXT     NOT NULL DEFAULT ''
);
`

const ddlMeetingConsent = `
CREATE TABLE IF NOT EXISTS meeting_consent (
    meeting_id        TEXT         NOT NULL,
    user_id           TEXT         NOT NULL,
    consent_given     BOOLEAN      NOT NULL,
    consent_timestamp TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (meeting_id, user_id)
);
`

// Migrate ensures all tables and indexes exist. Idempotent; runs on every
// start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlTranscript,
		ddlRecording,
		ddlMeeting,
		ddlRoom,
		ddlMeetingConsent,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
