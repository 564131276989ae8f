package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reactioncut/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresRepository is the production Repository backend, grounded on the
// teacher's withConn/pgxpool.Pool shape (internal/storage/postgres_migration.go)
// but implemented in full rather than left as the teacher's
// ErrPostgresUnavailable stub (see DESIGN.md: this repository treats the
// Persistent Store as core, not optional, infrastructure).
type postgresRepository struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

// NewPostgresRepository dials Postgres per cfg, applies the schema, and
// returns a ready Repository.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConnections
	poolCfg.MinConns = cfg.MinConnections
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	repo := &postgresRepository{pool: pool, clock: cfg.Clock}

	acquireCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := repo.withTx(acquireCtx, func(ctx context.Context, tx pgx.Tx) error {
		return ensureSchema(ctx, tx)
	}); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		_ = err // best-effort; the transaction may already be committed
	}
}

func (r *postgresRepository) withTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *postgresRepository) now() time.Time { return r.clock() }

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *postgresRepository) CreateTask(ctx context.Context, task models.SubmissionTask) (models.SubmissionTask, error) {
	if task.TaskID == "" {
		id, err := generateID()
		if err != nil {
			return models.SubmissionTask{}, err
		}
		task.TaskID = id
	}
	now := r.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	syncConfig, err := json.Marshal(task.SyncConfig)
	if err != nil {
		return models.SubmissionTask{}, fmt.Errorf("store: marshal sync config: %w", err)
	}

	err = r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tasks (task_id, title, description, partition_id, collection_id, tags, video_type,
				cover_url, segment_prefix, status, remote_identifier, remote_aid, remote_state, reject_reason,
				sync_config, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			task.TaskID, task.Title, task.Description, task.PartitionID, task.CollectionID, task.Tags,
			string(task.VideoType), task.CoverURL, task.SegmentPrefix, string(task.Status),
			task.RemoteIdentifier, task.RemoteAID, task.RemoteState, task.RejectReason,
			syncConfig, task.CreatedAt, task.UpdatedAt)
		return err
	})
	if err != nil {
		return models.SubmissionTask{}, fmt.Errorf("store: create task: %w", err)
	}
	return task, nil
}

func (r *postgresRepository) GetTask(ctx context.Context, taskID string) (models.SubmissionTask, error) {
	var task models.SubmissionTask
	var videoType, status string
	var syncConfig []byte

	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT task_id, title, description, partition_id, collection_id, tags, video_type, cover_url,
				segment_prefix, status, remote_identifier, remote_aid, remote_state, reject_reason,
				sync_config, created_at, updated_at
			FROM tasks WHERE task_id = $1`, taskID)
		return row.Scan(&task.TaskID, &task.Title, &task.Description, &task.PartitionID, &task.CollectionID,
			&task.Tags, &videoType, &task.CoverURL, &task.SegmentPrefix, &status, &task.RemoteIdentifier,
			&task.RemoteAID, &task.RemoteState, &task.RejectReason, &syncConfig, &task.CreatedAt, &task.UpdatedAt)
	})
	if err != nil {
		if isNoRows(err) {
			return models.SubmissionTask{}, ErrNotFound
		}
		return models.SubmissionTask{}, fmt.Errorf("store: get task: %w", err)
	}
	task.VideoType = models.VideoType(videoType)
	task.Status = models.TaskStatus(status)
	if err := json.Unmarshal(syncConfig, &task.SyncConfig); err != nil {
		return models.SubmissionTask{}, fmt.Errorf("store: unmarshal sync config: %w", err)
	}
	return task, nil
}

func (r *postgresRepository) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (models.SubmissionTask, error) {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tasks SET
				status = COALESCE($2, status),
				remote_identifier = COALESCE($3, remote_identifier),
				remote_aid = COALESCE($4, remote_aid),
				remote_state = COALESCE($5, remote_state),
				reject_reason = COALESCE($6, reject_reason),
				cover_url = COALESCE($7, cover_url),
				title = COALESCE($8, title),
				description = COALESCE($9, description),
				updated_at = $10
			WHERE task_id = $1`,
			taskID,
			(*string)(update.Status),
			update.RemoteIdentifier,
			update.RemoteAID,
			update.RemoteState,
			update.RejectReason,
			update.CoverURL,
			update.Title,
			update.Description,
			r.now())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return models.SubmissionTask{}, ErrNotFound
		}
		return models.SubmissionTask{}, fmt.Errorf("store: update task: %w", err)
	}
	return r.GetTask(ctx, taskID)
}

func (r *postgresRepository) ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.SubmissionTask, error) {
	wanted := make([]string, 0, len(statuses))
	for _, s := range statuses {
		wanted = append(wanted, string(s))
	}

	var out []models.SubmissionTask
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			SELECT task_id, title, description, partition_id, collection_id, tags, video_type, cover_url,
				segment_prefix, status, remote_identifier, remote_aid, remote_state, reject_reason,
				sync_config, created_at, updated_at
			FROM tasks`
		args := []any{}
		if len(wanted) > 0 {
			query += ` WHERE status = ANY($1)`
			args = append(args, wanted)
		}
		query += ` ORDER BY task_id`

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var task models.SubmissionTask
			var videoType, status string
			var syncConfig []byte
			if err := rows.Scan(&task.TaskID, &task.Title, &task.Description, &task.PartitionID,
				&task.CollectionID, &task.Tags, &videoType, &task.CoverURL, &task.SegmentPrefix, &status,
				&task.RemoteIdentifier, &task.RemoteAID, &task.RemoteState, &task.RejectReason,
				&syncConfig, &task.CreatedAt, &task.UpdatedAt); err != nil {
				return err
			}
			task.VideoType = models.VideoType(videoType)
			task.Status = models.TaskStatus(status)
			if err := json.Unmarshal(syncConfig, &task.SyncConfig); err != nil {
				return err
			}
			out = append(out, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) DeleteTask(ctx context.Context, taskID string) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE task_id = $1`, taskID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: delete task: %w", err)
	}
	return nil
}

func (r *postgresRepository) AddSourceVideo(ctx context.Context, video models.TaskSourceVideo) (models.TaskSourceVideo, error) {
	if video.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.TaskSourceVideo{}, err
		}
		video.ID = id
	}
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO source_videos (id, task_id, file_path, ordinal, start_timecode, end_timecode)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			video.ID, video.TaskID, video.FilePath, video.Ordinal, video.StartTimecode, video.EndTimecode)
		return err
	})
	if err != nil {
		return models.TaskSourceVideo{}, fmt.Errorf("store: add source video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) ListSourceVideos(ctx context.Context, taskID string) ([]models.TaskSourceVideo, error) {
	var out []models.TaskSourceVideo
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, task_id, file_path, ordinal, start_timecode, end_timecode
			FROM source_videos WHERE task_id = $1 ORDER BY ordinal`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v models.TaskSourceVideo
			if err := rows.Scan(&v.ID, &v.TaskID, &v.FilePath, &v.Ordinal, &v.StartTimecode, &v.EndTimecode); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list source videos: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) UpdateSourceVideoWindow(ctx context.Context, id, startTimecode, endTimecode string) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE source_videos SET start_timecode = $2, end_timecode = $3 WHERE id = $1`,
			id, startTimecode, endTimecode)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: update source video window: %w", err)
	}
	return nil
}

func (r *postgresRepository) AddClip(ctx context.Context, clip models.VideoClip) error {
	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = r.now()
	}
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO clips (task_id, path, ordinal, created_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (task_id, ordinal) DO UPDATE SET path = EXCLUDED.path, created_at = EXCLUDED.created_at`,
			clip.TaskID, clip.Path, clip.Ordinal, clip.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: add clip: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListClips(ctx context.Context, taskID string) ([]models.VideoClip, error) {
	var out []models.VideoClip
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT task_id, path, ordinal, created_at FROM clips WHERE task_id = $1 ORDER BY ordinal`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c models.VideoClip
			if err := rows.Scan(&c.TaskID, &c.Path, &c.Ordinal, &c.CreatedAt); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list clips: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) UpsertMergedVideo(ctx context.Context, merged models.MergedVideo) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO merged_videos (task_id, path, size, session_id, biz_id, endpoint, session_auth, uri,
				chunk_size, uploaded_bytes, total_bytes, last_part_index, progress_percent)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (task_id) DO UPDATE SET
				path = EXCLUDED.path, size = EXCLUDED.size, session_id = EXCLUDED.session_id,
				biz_id = EXCLUDED.biz_id, endpoint = EXCLUDED.endpoint, session_auth = EXCLUDED.session_auth,
				uri = EXCLUDED.uri, chunk_size = EXCLUDED.chunk_size, uploaded_bytes = EXCLUDED.uploaded_bytes,
				total_bytes = EXCLUDED.total_bytes, last_part_index = EXCLUDED.last_part_index,
				progress_percent = EXCLUDED.progress_percent`,
			merged.TaskID, merged.Path, merged.Size, merged.SessionID, merged.BizID, merged.Endpoint,
			merged.SessionAuth, merged.URI, merged.ChunkSize, merged.UploadedBytes, merged.TotalBytes,
			merged.LastPartIndex, merged.ProgressPercent)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert merged video: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetMergedVideo(ctx context.Context, taskID string) (models.MergedVideo, error) {
	var m models.MergedVideo
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT task_id, path, size, session_id, biz_id, endpoint, session_auth, uri, chunk_size,
				uploaded_bytes, total_bytes, last_part_index, progress_percent
			FROM merged_videos WHERE task_id = $1`, taskID)
		return row.Scan(&m.TaskID, &m.Path, &m.Size, &m.SessionID, &m.BizID, &m.Endpoint, &m.SessionAuth,
			&m.URI, &m.ChunkSize, &m.UploadedBytes, &m.TotalBytes, &m.LastPartIndex, &m.ProgressPercent)
	})
	if err != nil {
		if isNoRows(err) {
			return models.MergedVideo{}, ErrNotFound
		}
		return models.MergedVideo{}, fmt.Errorf("store: get merged video: %w", err)
	}
	return m, nil
}

func (r *postgresRepository) UpsertOutputSegment(ctx context.Context, segment models.TaskOutputSegment) (models.TaskOutputSegment, error) {
	if segment.SegmentID == "" {
		id, err := generateID()
		if err != nil {
			return models.TaskOutputSegment{}, err
		}
		segment.SegmentID = id
	}
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO output_segments (segment_id, task_id, part_name, file_path, part_order, upload_status,
				assigned_cid, remote_filename, session_id, biz_id, endpoint, session_auth, uri, chunk_size,
				uploaded_bytes, total_bytes, last_part_index, progress_percent)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (segment_id) DO UPDATE SET
				part_name = EXCLUDED.part_name, file_path = EXCLUDED.file_path, part_order = EXCLUDED.part_order,
				upload_status = EXCLUDED.upload_status, assigned_cid = EXCLUDED.assigned_cid,
				remote_filename = EXCLUDED.remote_filename, session_id = EXCLUDED.session_id,
				biz_id = EXCLUDED.biz_id, endpoint = EXCLUDED.endpoint, session_auth = EXCLUDED.session_auth,
				uri = EXCLUDED.uri, chunk_size = EXCLUDED.chunk_size, uploaded_bytes = EXCLUDED.uploaded_bytes,
				total_bytes = EXCLUDED.total_bytes, last_part_index = EXCLUDED.last_part_index,
				progress_percent = EXCLUDED.progress_percent`,
			segment.SegmentID, segment.TaskID, segment.PartName, segment.FilePath, segment.PartOrder,
			string(segment.UploadStatus), segment.AssignedCID, segment.RemoteFilename, segment.SessionID,
			segment.BizID, segment.Endpoint, segment.SessionAuth, segment.URI, segment.ChunkSize,
			segment.UploadedBytes, segment.TotalBytes, segment.LastPartIndex, segment.ProgressPercent)
		return err
	})
	if err != nil {
		return models.TaskOutputSegment{}, fmt.Errorf("store: upsert output segment: %w", err)
	}
	return segment, nil
}

func scanOutputSegment(row pgx.Row) (models.TaskOutputSegment, error) {
	var s models.TaskOutputSegment
	var status string
	err := row.Scan(&s.SegmentID, &s.TaskID, &s.PartName, &s.FilePath, &s.PartOrder, &status,
		&s.AssignedCID, &s.RemoteFilename, &s.SessionID, &s.BizID, &s.Endpoint, &s.SessionAuth, &s.URI,
		&s.ChunkSize, &s.UploadedBytes, &s.TotalBytes, &s.LastPartIndex, &s.ProgressPercent)
	s.UploadStatus = models.UploadStatus(status)
	return s, err
}

const outputSegmentColumns = `segment_id, task_id, part_name, file_path, part_order, upload_status,
	assigned_cid, remote_filename, session_id, biz_id, endpoint, session_auth, uri, chunk_size,
	uploaded_bytes, total_bytes, last_part_index, progress_percent`

func (r *postgresRepository) GetOutputSegment(ctx context.Context, segmentID string) (models.TaskOutputSegment, error) {
	var segment models.TaskOutputSegment
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+outputSegmentColumns+` FROM output_segments WHERE segment_id = $1`, segmentID)
		var err error
		segment, err = scanOutputSegment(row)
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return models.TaskOutputSegment{}, ErrNotFound
		}
		return models.TaskOutputSegment{}, fmt.Errorf("store: get output segment: %w", err)
	}
	return segment, nil
}

func (r *postgresRepository) ListOutputSegments(ctx context.Context, taskID string) ([]models.TaskOutputSegment, error) {
	var out []models.TaskOutputSegment
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+outputSegmentColumns+` FROM output_segments WHERE task_id = $1 ORDER BY part_order`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			segment, err := scanOutputSegment(rows)
			if err != nil {
				return err
			}
			out = append(out, segment)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list output segments: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) ClearTaskArtifacts(ctx context.Context, taskID string) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM output_segments WHERE task_id = $1`, taskID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM merged_videos WHERE task_id = $1`, taskID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM clips WHERE task_id = $1`, taskID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: clear task artifacts: %w", err)
	}
	return nil
}

func (r *postgresRepository) ClearOutputSegments(ctx context.Context, taskID string) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM output_segments WHERE task_id = $1`, taskID)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: clear output segments: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) (models.WorkflowInstance, error) {
	if instance.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.WorkflowInstance{}, err
		}
		instance.ID = id
	}
	now := r.now()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	config, err := json.Marshal(instance.Config)
	if err != nil {
		return models.WorkflowInstance{}, fmt.Errorf("store: marshal workflow config: %w", err)
	}

	err = r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO workflow_instances (id, task_id, workflow_type, status, current_step, progress,
				config, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			instance.ID, instance.TaskID, string(instance.WorkflowType), string(instance.Status),
			string(instance.CurrentStep), instance.Progress, config, instance.CreatedAt, instance.UpdatedAt)
		return err
	})
	if err != nil {
		return models.WorkflowInstance{}, fmt.Errorf("store: create workflow instance: %w", err)
	}
	return instance, nil
}

func (r *postgresRepository) UpdateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) error {
	config, err := json.Marshal(instance.Config)
	if err != nil {
		return fmt.Errorf("store: marshal workflow config: %w", err)
	}
	err = r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE workflow_instances SET status = $2, current_step = $3, progress = $4, config = $5, updated_at = $6
			WHERE id = $1`,
			instance.ID, string(instance.Status), string(instance.CurrentStep), instance.Progress, config, r.now())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: update workflow instance: %w", err)
	}
	return nil
}

func scanWorkflowInstance(row pgx.Row) (models.WorkflowInstance, error) {
	var wf models.WorkflowInstance
	var workflowType, status, step string
	var config []byte
	err := row.Scan(&wf.ID, &wf.TaskID, &workflowType, &status, &step, &wf.Progress, &config, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return models.WorkflowInstance{}, err
	}
	wf.WorkflowType = models.WorkflowType(workflowType)
	wf.Status = models.WorkflowStatus(status)
	wf.CurrentStep = models.WorkflowStep(step)
	if err := json.Unmarshal(config, &wf.Config); err != nil {
		return models.WorkflowInstance{}, err
	}
	return wf, nil
}

const workflowInstanceColumns = `id, task_id, workflow_type, status, current_step, progress, config, created_at, updated_at`

func (r *postgresRepository) GetActiveWorkflowInstance(ctx context.Context, taskID string) (models.WorkflowInstance, error) {
	var wf models.WorkflowInstance
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+workflowInstanceColumns+`
			FROM workflow_instances WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`, taskID)
		var err error
		wf, err = scanWorkflowInstance(row)
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return models.WorkflowInstance{}, ErrNotFound
		}
		return models.WorkflowInstance{}, fmt.Errorf("store: get active workflow instance: %w", err)
	}
	return wf, nil
}

func (r *postgresRepository) ListWorkflowInstancesByStatus(ctx context.Context, statuses ...models.WorkflowStatus) ([]models.WorkflowInstance, error) {
	wanted := make([]string, 0, len(statuses))
	for _, s := range statuses {
		wanted = append(wanted, string(s))
	}
	var out []models.WorkflowInstance
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `SELECT ` + workflowInstanceColumns + ` FROM workflow_instances`
		args := []any{}
		if len(wanted) > 0 {
			query += ` WHERE status = ANY($1)`
			args = append(args, wanted)
		}
		query += ` ORDER BY id`
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			wf, err := scanWorkflowInstance(rows)
			if err != nil {
				return err
			}
			out = append(out, wf)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list workflow instances: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) CreateLiveRecordTask(ctx context.Context, task models.LiveRecordTask) (models.LiveRecordTask, error) {
	if task.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.LiveRecordTask{}, err
		}
		task.ID = id
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = r.now()
	}
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO live_record_tasks (id, room_id, file_path, segment_index, title, status, size, started_at, ended_at, error_message)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,$9)`,
			task.ID, task.RoomID, task.FilePath, task.SegmentIndex, task.Title, string(task.Status), task.Size,
			task.StartedAt, task.ErrorMessage)
		return err
	})
	if err != nil {
		return models.LiveRecordTask{}, fmt.Errorf("store: create live record task: %w", err)
	}
	return task, nil
}

func (r *postgresRepository) FinishLiveRecordTask(ctx context.Context, taskID string, status models.LiveRecordStatus, endedAt time.Time, bytesWritten int64, errMessage string) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE live_record_tasks SET status = $2, ended_at = $3, size = $4, error_message = $5 WHERE id = $1`,
			taskID, string(status), endedAt, bytesWritten, errMessage)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: finish live record task: %w", err)
	}
	return nil
}

func scanLiveRecordTask(row pgx.Row) (models.LiveRecordTask, error) {
	var task models.LiveRecordTask
	var status string
	var endedAt *time.Time
	err := row.Scan(&task.ID, &task.RoomID, &task.FilePath, &task.SegmentIndex, &task.Title, &status,
		&task.Size, &task.StartedAt, &endedAt, &task.ErrorMessage)
	if err != nil {
		return models.LiveRecordTask{}, err
	}
	task.Status = models.LiveRecordStatus(status)
	if endedAt != nil {
		task.EndedAt = *endedAt
	}
	return task, nil
}

const liveRecordTaskColumns = `id, room_id, file_path, segment_index, title, status, size, started_at, ended_at, error_message`

func (r *postgresRepository) GetActiveLiveRecordTask(ctx context.Context, roomID string) (models.LiveRecordTask, error) {
	var task models.LiveRecordTask
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+liveRecordTaskColumns+`
			FROM live_record_tasks WHERE room_id = $1 AND status = $2 ORDER BY started_at DESC LIMIT 1`,
			roomID, string(models.LiveRecordStatusRecording))
		var err error
		task, err = scanLiveRecordTask(row)
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return models.LiveRecordTask{}, ErrNotFound
		}
		return models.LiveRecordTask{}, fmt.Errorf("store: get active live record task: %w", err)
	}
	return task, nil
}

func (r *postgresRepository) ListStaleLiveRecordTasks(ctx context.Context, olderThan time.Time) ([]models.LiveRecordTask, error) {
	var out []models.LiveRecordTask
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+liveRecordTaskColumns+`
			FROM live_record_tasks WHERE status = $1 AND started_at < $2 ORDER BY id`,
			string(models.LiveRecordStatusRecording), olderThan)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			task, err := scanLiveRecordTask(rows)
			if err != nil {
				return err
			}
			out = append(out, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list stale live record tasks: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) UpdateLiveRecordFilePath(ctx context.Context, taskID, filePath string, size int64) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE live_record_tasks SET file_path = $2, size = $3 WHERE id = $1`, taskID, filePath, size)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: update live record file path: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpsertAnchor(ctx context.Context, anchor models.Anchor) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO anchors (room_id, live_status, auto_record, nickname) VALUES ($1,$2,$3,$4)
			ON CONFLICT (room_id) DO UPDATE SET live_status = EXCLUDED.live_status,
				auto_record = EXCLUDED.auto_record, nickname = EXCLUDED.nickname`,
			anchor.RoomID, anchor.LiveStatus, anchor.AutoRecord, anchor.Nickname)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert anchor: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetAnchor(ctx context.Context, roomID string) (models.Anchor, error) {
	var anchor models.Anchor
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT room_id, live_status, auto_record, nickname FROM anchors WHERE room_id = $1`, roomID)
		return row.Scan(&anchor.RoomID, &anchor.LiveStatus, &anchor.AutoRecord, &anchor.Nickname)
	})
	if err != nil {
		if isNoRows(err) {
			return models.Anchor{}, ErrNotFound
		}
		return models.Anchor{}, fmt.Errorf("store: get anchor: %w", err)
	}
	return anchor, nil
}

func (r *postgresRepository) ListAutoRecordAnchors(ctx context.Context) ([]models.Anchor, error) {
	var out []models.Anchor
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT room_id, live_status, auto_record, nickname FROM anchors WHERE auto_record = TRUE ORDER BY room_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var anchor models.Anchor
			if err := rows.Scan(&anchor.RoomID, &anchor.LiveStatus, &anchor.AutoRecord, &anchor.Nickname); err != nil {
				return err
			}
			out = append(out, anchor)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list auto-record anchors: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) CreateDownloadRecord(ctx context.Context, record models.IntegratedDownloadRecord) (models.IntegratedDownloadRecord, error) {
	if record.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.IntegratedDownloadRecord{}, err
		}
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO download_records (id, task_id, relation_type, source_path, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			record.ID, record.TaskID, string(record.RelationType), record.SourcePath, int(record.Status), record.CreatedAt)
		return err
	})
	if err != nil {
		return models.IntegratedDownloadRecord{}, fmt.Errorf("store: create download record: %w", err)
	}
	return record, nil
}

func (r *postgresRepository) ListDownloadRecordsByTask(ctx context.Context, taskID string) ([]models.IntegratedDownloadRecord, error) {
	var out []models.IntegratedDownloadRecord
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, task_id, relation_type, source_path, status, created_at
			FROM download_records WHERE task_id = $1 ORDER BY created_at`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d models.IntegratedDownloadRecord
			var relationType string
			var status int
			if err := rows.Scan(&d.ID, &d.TaskID, &relationType, &d.SourcePath, &status, &d.CreatedAt); err != nil {
				return err
			}
			d.RelationType = models.RelationType(relationType)
			d.Status = models.DownloadStatus(status)
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list download records: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) UpdateDownloadRecordStatus(ctx context.Context, id string, status models.DownloadStatus) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE download_records SET status = $2 WHERE id = $1`, id, int(status))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: update download record status: %w", err)
	}
	return nil
}

func (r *postgresRepository) SaveCredential(ctx context.Context, key string, encrypted []byte) error {
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO credentials (key, encrypted) VALUES ($1,$2)
			ON CONFLICT (key) DO UPDATE SET encrypted = EXCLUDED.encrypted`,
			key, encrypted)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: save credential: %w", err)
	}
	return nil
}

func (r *postgresRepository) LoadCredential(ctx context.Context, key string) ([]byte, error) {
	var encrypted []byte
	err := r.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT encrypted FROM credentials WHERE key = $1`, key).Scan(&encrypted)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load credential: %w", err)
	}
	return encrypted, nil
}

var _ Repository = (*postgresRepository)(nil)
