package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaStatements are applied, in order, the first time a Postgres
// repository connects. Grounded on the teacher's postgres_migration.go
// transaction-wrapped-apply idiom, generalized here to an actual schema
// (the teacher's own Postgres path never got past a stub — see DESIGN.md).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		task_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		partition_id INTEGER NOT NULL DEFAULT 0,
		collection_id INTEGER NOT NULL DEFAULT 0,
		tags TEXT[] NOT NULL DEFAULT '{}',
		video_type TEXT NOT NULL,
		cover_url TEXT NOT NULL DEFAULT '',
		segment_prefix TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		remote_identifier TEXT NOT NULL DEFAULT '',
		remote_aid BIGINT NOT NULL DEFAULT 0,
		remote_state INTEGER NOT NULL DEFAULT 0,
		reject_reason TEXT NOT NULL DEFAULT '',
		sync_config JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS source_videos (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		start_timecode TEXT NOT NULL DEFAULT '',
		end_timecode TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS source_videos_task_idx ON source_videos(task_id)`,
	`CREATE TABLE IF NOT EXISTS clips (
		task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (task_id, ordinal)
	)`,
	`CREATE TABLE IF NOT EXISTS merged_videos (
		task_id TEXT PRIMARY KEY REFERENCES tasks(task_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		session_id TEXT NOT NULL DEFAULT '',
		biz_id BIGINT NOT NULL DEFAULT 0,
		endpoint TEXT NOT NULL DEFAULT '',
		session_auth TEXT NOT NULL DEFAULT '',
		uri TEXT NOT NULL DEFAULT '',
		chunk_size BIGINT NOT NULL DEFAULT 0,
		uploaded_bytes BIGINT NOT NULL DEFAULT 0,
		total_bytes BIGINT NOT NULL DEFAULT 0,
		last_part_index INTEGER NOT NULL DEFAULT 0,
		progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS output_segments (
		segment_id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		part_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		part_order INTEGER NOT NULL,
		upload_status TEXT NOT NULL,
		assigned_cid BIGINT NOT NULL DEFAULT 0,
		remote_filename TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		biz_id BIGINT NOT NULL DEFAULT 0,
		endpoint TEXT NOT NULL DEFAULT '',
		session_auth TEXT NOT NULL DEFAULT '',
		uri TEXT NOT NULL DEFAULT '',
		chunk_size BIGINT NOT NULL DEFAULT 0,
		uploaded_bytes BIGINT NOT NULL DEFAULT 0,
		total_bytes BIGINT NOT NULL DEFAULT 0,
		last_part_index INTEGER NOT NULL DEFAULT 0,
		progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS output_segments_task_idx ON output_segments(task_id)`,
	`CREATE TABLE IF NOT EXISTS workflow_instances (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		workflow_type TEXT NOT NULL,
		status TEXT NOT NULL,
		current_step TEXT NOT NULL DEFAULT '',
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		config JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS workflow_instances_task_idx ON workflow_instances(task_id)`,
	`CREATE INDEX IF NOT EXISTS workflow_instances_status_idx ON workflow_instances(status)`,
	`CREATE TABLE IF NOT EXISTS live_record_tasks (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS live_record_tasks_room_idx ON live_record_tasks(room_id)`,
	`CREATE INDEX IF NOT EXISTS live_record_tasks_status_idx ON live_record_tasks(status)`,
	`CREATE TABLE IF NOT EXISTS anchors (
		room_id TEXT PRIMARY KEY,
		live_status BOOLEAN NOT NULL DEFAULT FALSE,
		auto_record BOOLEAN NOT NULL DEFAULT FALSE,
		nickname TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS download_records (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		relation_type TEXT NOT NULL,
		source_path TEXT NOT NULL,
		status INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS download_records_task_idx ON download_records(task_id)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		encrypted BYTEA NOT NULL
	)`,
}

func ensureSchema(ctx context.Context, tx pgx.Tx) error {
	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return nil
}
