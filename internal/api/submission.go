package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
	"reactioncut/internal/workflow"
)

// sourceVideoRequest is one input file contributed to a create/update
// request, mirroring original_source's SubmissionSourceVideo.
type sourceVideoRequest struct {
	SourceFilePath string `json:"sourceFilePath"`
	StartTime      string `json:"startTime,omitempty"`
	EndTime        string `json:"endTime,omitempty"`
	SortOrder      int    `json:"sortOrder,omitempty"`
}

// taskRequest is the subset of SubmissionTask a create/update request
// supplies; Status and remote identifiers are never caller-settable.
type taskRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	PartitionID   int    `json:"partitionId"`
	CollectionID  int    `json:"collectionId,omitempty"`
	Tags          string `json:"tags,omitempty"`
	VideoType     string `json:"videoType,omitempty"`
	CoverURL      string `json:"coverUrl,omitempty"`
	SegmentPrefix string `json:"segmentPrefix,omitempty"`
}

// workflowConfigRequest maps the WorkflowConfiguration config keys spec §6
// defines onto models.SyncConfig.
type workflowConfigRequest struct {
	EnableSegmentation  bool   `json:"enableSegmentation,omitempty"`
	SegmentationConfig  *struct {
		Enabled               *bool `json:"enabled,omitempty"`
		SegmentDurationSecond int   `json:"segmentDurationSeconds,omitempty"`
	} `json:"segmentationConfig,omitempty"`
	SegmentPrefix string               `json:"segmentPrefix,omitempty"`
	UpdateSources []sourceVideoRequest `json:"updateSources,omitempty"`
}

func (c *workflowConfigRequest) toSyncConfig() models.SyncConfig {
	cfg := models.SyncConfig{
		EnableSegmentation:    c.EnableSegmentation,
		SegmentDurationSecond: models.DefaultSegmentDurationSeconds,
		SegmentPrefix:         strings.TrimSpace(c.SegmentPrefix),
	}
	if c.SegmentationConfig != nil {
		if c.SegmentationConfig.Enabled != nil {
			cfg.EnableSegmentation = *c.SegmentationConfig.Enabled
		}
		if c.SegmentationConfig.SegmentDurationSecond > 0 {
			cfg.SegmentDurationSecond = c.SegmentationConfig.SegmentDurationSecond
		}
	}
	for _, src := range c.UpdateSources {
		start, _ := strconv.ParseFloat(src.StartTime, 64)
		end, _ := strconv.ParseFloat(src.EndTime, 64)
		cfg.UpdateSources = append(cfg.UpdateSources, models.UpdateSourceConfig{
			SourceFilePath: src.SourceFilePath,
			StartTime:      start,
			EndTime:        end,
			SortOrder:      src.SortOrder,
		})
	}
	return cfg
}

// createRequest is the request body for submission create (spec §6),
// grounded on original_source's SubmissionCreateRequest.
type createRequest struct {
	Task          taskRequest            `json:"task"`
	SourceVideos  []sourceVideoRequest   `json:"sourceVideos"`
	WorkflowConfig *workflowConfigRequest `json:"workflowConfig,omitempty"`
}

// taskCreationResult mirrors original_source's TaskCreationResult: the new
// task_id plus, when a workflow_config was supplied, the freshly started
// instance's id and status (or an error that did not abort task creation).
type taskCreationResult struct {
	TaskID             string  `json:"taskId"`
	WorkflowInstanceID *string `json:"workflowInstanceId,omitempty"`
	WorkflowStatus     *string `json:"workflowStatus,omitempty"`
	WorkflowError      *string `json:"workflowError,omitempty"`
}

// Create implements submission create (spec §6): inserts a PENDING task
// and its source videos, and, when a workflow config was supplied, starts
// a fresh VIDEO_SUBMISSION WorkflowInstance and launches the Workflow
// Engine for it. Grounded on original_source's submission_create.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Task.Title) == "" {
		WriteRequestError(w, badRequest("title is required"))
		return
	}

	ctx := r.Context()
	task := models.SubmissionTask{
		Title:         req.Task.Title,
		Description:   req.Task.Description,
		PartitionID:   req.Task.PartitionID,
		CollectionID:  req.Task.CollectionID,
		Tags:          splitTags(req.Task.Tags),
		VideoType:     videoTypeOrDefault(req.Task.VideoType),
		CoverURL:      req.Task.CoverURL,
		SegmentPrefix: req.Task.SegmentPrefix,
		Status:        models.TaskStatusPending,
	}
	created, err := h.Store.CreateTask(ctx, task)
	if err != nil {
		WriteRequestError(w, fmt.Errorf("create task: %w", err))
		return
	}
	for i, src := range req.SourceVideos {
		if _, err := h.Store.AddSourceVideo(ctx, models.TaskSourceVideo{
			TaskID:        created.TaskID,
			FilePath:      src.SourceFilePath,
			Ordinal:       ordinalOrIndex(src.SortOrder, i),
			StartTimecode: src.StartTime,
			EndTimecode:   src.EndTime,
		}); err != nil {
			WriteRequestError(w, fmt.Errorf("add source video: %w", err))
			return
		}
	}

	result := taskCreationResult{TaskID: created.TaskID}
	if req.WorkflowConfig != nil {
		instance, err := h.Store.CreateWorkflowInstance(ctx, models.WorkflowInstance{
			TaskID:       created.TaskID,
			WorkflowType: models.WorkflowTypeSubmission,
			Status:       models.WorkflowStatusRunning,
			CurrentStep:  models.WorkflowStepWaitReady,
			Config:       req.WorkflowConfig.toSyncConfig(),
		})
		if err != nil {
			errMsg := err.Error()
			result.WorkflowError = &errMsg
		} else {
			id, status := instance.ID, string(instance.Status)
			result.WorkflowInstanceID = &id
			result.WorkflowStatus = &status
			h.runWorkflow(created.TaskID)
		}
	}
	WriteJSON(w, http.StatusCreated, result)
}

// updateRequest is the request body for submission update, grounded on
// original_source's SubmissionUpdateRequest: additional source videos plus
// the workflow config that drives the resulting VIDEO_UPDATE run.
type updateRequest struct {
	TaskID        string                `json:"taskId"`
	SourceVideos  []sourceVideoRequest  `json:"sourceVideos"`
	WorkflowConfig *workflowConfigRequest `json:"workflowConfig"`
}

// Update implements submission update (spec §6): appends source videos to
// an editable task, resets it to PENDING, starts a fresh VIDEO_UPDATE
// WorkflowInstance, and launches the Workflow Engine. Grounded on
// original_source's submission_update.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	taskID := strings.TrimSpace(req.TaskID)
	if taskID == "" {
		WriteRequestError(w, badRequest("taskId is required"))
		return
	}
	if len(req.SourceVideos) == 0 {
		WriteRequestError(w, badRequest("at least one source video is required"))
		return
	}
	if req.WorkflowConfig == nil {
		WriteRequestError(w, badRequest("workflowConfig is required"))
		return
	}

	ctx := r.Context()
	task, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	if err := ensureEditable(task); err != nil {
		WriteRequestError(w, err)
		return
	}

	for i, src := range req.SourceVideos {
		if _, err := h.Store.AddSourceVideo(ctx, models.TaskSourceVideo{
			TaskID:        taskID,
			FilePath:      src.SourceFilePath,
			Ordinal:       ordinalOrIndex(src.SortOrder, i),
			StartTimecode: src.StartTime,
			EndTimecode:   src.EndTime,
		}); err != nil {
			WriteRequestError(w, fmt.Errorf("add source video: %w", err))
			return
		}
	}

	pending := models.TaskStatusPending
	if _, err := h.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &pending}); err != nil {
		WriteRequestError(w, fmt.Errorf("reset task status: %w", err))
		return
	}

	cfg := req.WorkflowConfig.toSyncConfig()
	for _, src := range req.SourceVideos {
		start, _ := strconv.ParseFloat(src.StartTime, 64)
		end, _ := strconv.ParseFloat(src.EndTime, 64)
		cfg.UpdateSources = append(cfg.UpdateSources, models.UpdateSourceConfig{
			SourceFilePath: src.SourceFilePath, StartTime: start, EndTime: end, SortOrder: src.SortOrder,
		})
	}
	if _, err := h.Store.CreateWorkflowInstance(ctx, models.WorkflowInstance{
		TaskID:       taskID,
		WorkflowType: models.WorkflowTypeUpdate,
		Status:       models.WorkflowStatusRunning,
		CurrentStep:  models.WorkflowStepWaitReady,
		Config:       cfg,
	}); err != nil {
		WriteRequestError(w, fmt.Errorf("create workflow instance: %w", err))
		return
	}
	h.runWorkflow(taskID)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "update started"})
}

// ensureEditable rejects a create/update/edit command against a task whose
// workflow is currently occupying it, mirroring original_source's
// ensure_editable_detail.
func ensureEditable(task models.SubmissionTask) error {
	switch task.Status {
	case models.TaskStatusClipping, models.TaskStatusMerging, models.TaskStatusSegmenting, models.TaskStatusUploading:
		return conflict(fmt.Sprintf("task is currently %s", task.Status))
	}
	return nil
}

// List implements submission list (spec §6): every task regardless of
// status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Store.ListTasksByStatus(r.Context())
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tasks)
}

// ListByStatus implements submission list-by-status (spec §6): tasks
// filtered to the statuses named in the ?status= query parameter
// (comma-separated).
func (h *Handler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if strings.TrimSpace(raw) == "" {
		WriteRequestError(w, badRequest("status query parameter is required"))
		return
	}
	var statuses []models.TaskStatus
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, models.TaskStatus(s))
		}
	}
	tasks, err := h.Store.ListTasksByStatus(r.Context(), statuses...)
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tasks)
}

// taskDetail aggregates a task with the rows the UI needs alongside it,
// mirroring original_source's SubmissionTaskDetail.
type taskDetail struct {
	Task            models.SubmissionTask        `json:"task"`
	SourceVideos    []models.TaskSourceVideo     `json:"sourceVideos"`
	Clips           []models.VideoClip           `json:"clips"`
	MergedVideo     *models.MergedVideo          `json:"mergedVideo,omitempty"`
	OutputSegments  []models.TaskOutputSegment   `json:"outputSegments"`
	WorkflowInstance *models.WorkflowInstance    `json:"workflowInstance,omitempty"`
}

func (h *Handler) loadDetail(ctx context.Context, taskID string) (taskDetail, error) {
	task, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		return taskDetail{}, err
	}
	sources, err := h.Store.ListSourceVideos(ctx, taskID)
	if err != nil {
		return taskDetail{}, err
	}
	clips, err := h.Store.ListClips(ctx, taskID)
	if err != nil {
		return taskDetail{}, err
	}
	segments, err := h.Store.ListOutputSegments(ctx, taskID)
	if err != nil {
		return taskDetail{}, err
	}
	detail := taskDetail{Task: task, SourceVideos: sources, Clips: clips, OutputSegments: segments}
	if merged, err := h.Store.GetMergedVideo(ctx, taskID); err == nil {
		detail.MergedVideo = &merged
	}
	if instance, err := h.Store.GetActiveWorkflowInstance(ctx, taskID); err == nil {
		detail.WorkflowInstance = &instance
	}
	return detail, nil
}

// Detail implements submission detail (spec §6).
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request, taskID string) {
	detail, err := h.loadDetail(r.Context(), taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// TaskDir implements submission task-dir (spec §6): the base directory a
// fresh workflow run for taskID would write into.
func (h *Handler) TaskDir(w http.ResponseWriter, r *http.Request, taskID string) {
	paths := workflow.BuildTaskPaths(h.BaseDir, taskID, false, time.Now())
	WriteJSON(w, http.StatusOK, map[string]string{"taskDir": paths.Root})
}

// Delete implements submission delete (spec §6): removes the task row and
// every derived artifact row, leaving files on disk untouched (spec.md
// leaves file cleanup to the surrounding desktop application).
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx := r.Context()
	if err := h.Store.ClearTaskArtifacts(ctx, taskID); err != nil {
		WriteRequestError(w, err)
		return
	}
	if err := h.Store.DeleteTask(ctx, taskID); err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// Execute implements submission execute (spec §6): launches the Workflow
// Engine for a task whose instance already exists (e.g. a create that
// deferred starting the pipeline). Grounded on original_source's
// submission_execute.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request, taskID string) {
	h.runWorkflow(taskID)
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "workflow started"})
}

// IntegratedExecute implements submission integrated-execute (spec §6): a
// one-click resubmission of a FAILED task whose source videos all arrived
// through the external download agent's INTEGRATED records. Refuses
// unless every such record is COMPLETED. Grounded on original_source's
// submission_integrated_execute.
func (h *Handler) IntegratedExecute(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx := r.Context()
	task, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	if task.Status != models.TaskStatusFailed {
		WriteRequestError(w, conflict("task status does not support integrated execute"))
		return
	}
	records, err := h.Store.ListDownloadRecordsByTask(ctx, taskID)
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	if len(records) == 0 {
		WriteRequestError(w, badRequest("task has no associated download records"))
		return
	}
	var completed, failed int
	for _, rec := range records {
		switch rec.Status {
		case models.DownloadStatusCompleted:
			completed++
		case models.DownloadStatusFailed:
			failed++
		}
	}
	if failed > 0 {
		WriteRequestError(w, conflict("one or more downloads failed; retry them first"))
		return
	}
	if completed != len(records) {
		WriteRequestError(w, conflict("downloads are still in progress"))
		return
	}
	if instance, err := h.Store.GetActiveWorkflowInstance(ctx, taskID); err == nil && instance.Status == models.WorkflowStatusRunning {
		WriteRequestError(w, conflict("workflow is already running"))
		return
	}
	h.runWorkflow(taskID)
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "workflow started"})
}

// UploadExecute implements submission upload-execute (spec §6): hands an
// already-produced task straight to the Upload Queue without re-running
// clip/merge/segment. Grounded on original_source's
// submission_upload_execute.
func (h *Handler) UploadExecute(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx := r.Context()
	task, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	if task.Status == models.TaskStatusUploading {
		WriteRequestError(w, conflict("task is already uploading"))
		return
	}
	if task.Status != models.TaskStatusWaitUpload && task.Status != models.TaskStatusFailed {
		WriteRequestError(w, conflict("task status does not support upload"))
		return
	}
	waiting := models.TaskStatusWaitUpload
	if _, err := h.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &waiting}); err != nil {
		WriteRequestError(w, err)
		return
	}
	if h.Queue != nil {
		h.Queue.Enqueue(ctx)
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "queued for upload"})
}

// RetrySegmentUpload implements submission retry-segment-upload (spec §6):
// resets one FAILED segment back to PENDING and wakes the Upload Queue,
// rather than uploading it synchronously the way original_source's
// submission_retry_segment_upload does in a Tauri request handler.
func (h *Handler) RetrySegmentUpload(w http.ResponseWriter, r *http.Request, segmentID string) {
	ctx := r.Context()
	segment, err := h.Store.GetOutputSegment(ctx, segmentID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "segment not found"))
		return
	}
	if segment.UploadStatus == models.UploadStatusSuccess {
		WriteJSON(w, http.StatusOK, map[string]string{"message": "segment already uploaded"})
		return
	}
	task, err := h.Store.GetTask(ctx, segment.TaskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	if task.Status == models.TaskStatusUploading {
		WriteRequestError(w, conflict("task is currently uploading, try again shortly"))
		return
	}

	segment.UploadStatus = models.UploadStatusPending
	segment.UploadSession = models.Cleared()
	if _, err := h.Store.UpsertOutputSegment(ctx, segment); err != nil {
		WriteRequestError(w, err)
		return
	}
	if task.Status == models.TaskStatusFailed {
		waiting := models.TaskStatusWaitUpload
		if _, err := h.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &waiting}); err != nil {
			WriteRequestError(w, err)
			return
		}
	}
	if h.Queue != nil {
		h.Queue.Enqueue(ctx)
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "segment queued for retry"})
}

// repostRequest carries whether the repost continues as a VIDEO_UPDATE
// (true) or a brand new submission (false).
type repostRequest struct {
	AsUpdate bool `json:"asUpdate,omitempty"`
}

// Repost implements submission repost (spec §6), delegating to
// workflow.Controller.Repost and starting the Workflow Engine unless the
// command deferred for missing sources.
func (h *Handler) Repost(w http.ResponseWriter, r *http.Request, taskID string) {
	var req repostRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body is optional; default asUpdate=false

	result, err := h.Controller.Repost(r.Context(), taskID, req.AsUpdate)
	if err != nil {
		WriteRequestError(w, translateWorkflowErr(err))
		return
	}
	if result.Deferred {
		WriteJSON(w, http.StatusAccepted, map[string]any{
			"message":         "requeued missing sources for download",
			"requeuedSources": result.RequeuedSources,
		})
		return
	}
	h.runWorkflow(taskID)
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "repost workflow started"})
}

// resegmentRequest carries the fixed segment duration to split with;
// zero falls back to workflow.DefaultSegmentDurationSeconds.
type resegmentRequest struct {
	SegmentDurationSecond int `json:"segmentDurationSeconds,omitempty"`
}

// Resegment implements submission resegment (spec §6), delegating to
// workflow.Controller.Resegment.
func (h *Handler) Resegment(w http.ResponseWriter, r *http.Request, taskID string) {
	var req resegmentRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	task, err := h.Store.GetTask(r.Context(), taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	paths := workflow.BuildTaskPaths(h.BaseDir, taskID, false, time.Now())
	if err := h.Controller.Resegment(r.Context(), taskID, h.Transcoder, paths.Output, req.SegmentDurationSecond); err != nil {
		WriteRequestError(w, translateWorkflowErr(err))
		return
	}
	_ = task
	WriteJSON(w, http.StatusOK, map[string]string{"message": "resegmented"})
}

func translateWorkflowErr(err error) error {
	if err == workflow.ErrUploadingInProgress {
		return conflict(err.Error())
	}
	return err
}

func translateStoreErr(err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(notFoundMsg)
	}
	return err
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func videoTypeOrDefault(raw string) models.VideoType {
	if models.VideoType(raw) == models.VideoTypeReprint {
		return models.VideoTypeReprint
	}
	return models.VideoTypeOriginal
}

func ordinalOrIndex(sortOrder, index int) int {
	if sortOrder > 0 {
		return sortOrder
	}
	return index
}

// statFileSize is a small helper edit-add-segment uses to size a staged
// segment without an upload session yet.
func statFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
