package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reactioncut/internal/models"
)

type memoryConfig struct {
	clock func() time.Time
}

func newMemoryConfig(opts ...Option) memoryConfig {
	cfg := memoryConfig{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMemory(&cfg)
		}
	}
	return cfg
}

// memoryRepository is an RWMutex-guarded in-memory Repository, grounded on
// the teacher's internal/storage.Storage dataset-of-maps shape. It backs
// tests and any operator who runs without a Postgres DSN configured.
type memoryRepository struct {
	mu sync.RWMutex

	clock func() time.Time

	tasks           map[string]models.SubmissionTask
	sourceVideos    map[string][]models.TaskSourceVideo
	clips           map[string][]models.VideoClip
	mergedVideos    map[string]models.MergedVideo
	outputSegments  map[string]models.TaskOutputSegment
	segmentsByTask  map[string][]string
	workflows       map[string]models.WorkflowInstance
	workflowsByTask map[string][]string
	liveRecords     map[string]models.LiveRecordTask
	anchors         map[string]models.Anchor
	downloads       map[string]models.IntegratedDownloadRecord
	downloadsByTask map[string][]string
	credentials     map[string][]byte
}

// NewMemoryRepository constructs an empty in-memory Repository.
func NewMemoryRepository(opts ...Option) (Repository, error) {
	cfg := newMemoryConfig(opts...)
	return &memoryRepository{
		clock:           cfg.clock,
		tasks:           make(map[string]models.SubmissionTask),
		sourceVideos:    make(map[string][]models.TaskSourceVideo),
		clips:           make(map[string][]models.VideoClip),
		mergedVideos:    make(map[string]models.MergedVideo),
		outputSegments:  make(map[string]models.TaskOutputSegment),
		segmentsByTask:  make(map[string][]string),
		workflows:       make(map[string]models.WorkflowInstance),
		workflowsByTask: make(map[string][]string),
		liveRecords:     make(map[string]models.LiveRecordTask),
		anchors:         make(map[string]models.Anchor),
		downloads:       make(map[string]models.IntegratedDownloadRecord),
		downloadsByTask: make(map[string][]string),
		credentials:     make(map[string][]byte),
	}, nil
}

func (r *memoryRepository) Ping(context.Context) error { return nil }
func (r *memoryRepository) Close() error                { return nil }

func (r *memoryRepository) now() time.Time { return r.clock() }

func (r *memoryRepository) CreateTask(_ context.Context, task models.SubmissionTask) (models.SubmissionTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.TaskID == "" {
		id, err := generateID()
		if err != nil {
			return models.SubmissionTask{}, err
		}
		task.TaskID = id
	}
	if _, exists := r.tasks[task.TaskID]; exists {
		return models.SubmissionTask{}, fmt.Errorf("store: task %s already exists", task.TaskID)
	}
	now := r.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Tags = append([]string(nil), task.Tags...)
	r.tasks[task.TaskID] = task
	return task, nil
}

func (r *memoryRepository) GetTask(_ context.Context, taskID string) (models.SubmissionTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return models.SubmissionTask{}, ErrNotFound
	}
	return task, nil
}

func (r *memoryRepository) UpdateTask(_ context.Context, taskID string, update TaskUpdate) (models.SubmissionTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return models.SubmissionTask{}, ErrNotFound
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.RemoteIdentifier != nil {
		task.RemoteIdentifier = *update.RemoteIdentifier
	}
	if update.RemoteAID != nil {
		task.RemoteAID = *update.RemoteAID
	}
	if update.RemoteState != nil {
		task.RemoteState = *update.RemoteState
	}
	if update.RejectReason != nil {
		task.RejectReason = *update.RejectReason
	}
	if update.CoverURL != nil {
		task.CoverURL = *update.CoverURL
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	task.UpdatedAt = r.now()
	r.tasks[taskID] = task
	return task, nil
}

func (r *memoryRepository) ListTasksByStatus(_ context.Context, statuses ...models.TaskStatus) ([]models.SubmissionTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[models.TaskStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []models.SubmissionTask
	for _, task := range r.tasks {
		if len(wanted) == 0 || wanted[task.Status] {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (r *memoryRepository) DeleteTask(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, taskID)
	delete(r.sourceVideos, taskID)
	delete(r.clips, taskID)
	delete(r.mergedVideos, taskID)
	for _, segID := range r.segmentsByTask[taskID] {
		delete(r.outputSegments, segID)
	}
	delete(r.segmentsByTask, taskID)
	for _, wfID := range r.workflowsByTask[taskID] {
		delete(r.workflows, wfID)
	}
	delete(r.workflowsByTask, taskID)
	for _, dlID := range r.downloadsByTask[taskID] {
		delete(r.downloads, dlID)
	}
	delete(r.downloadsByTask, taskID)
	return nil
}

func (r *memoryRepository) AddSourceVideo(_ context.Context, video models.TaskSourceVideo) (models.TaskSourceVideo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if video.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.TaskSourceVideo{}, err
		}
		video.ID = id
	}
	r.sourceVideos[video.TaskID] = append(r.sourceVideos[video.TaskID], video)
	return video, nil
}

func (r *memoryRepository) ListSourceVideos(_ context.Context, taskID string) ([]models.TaskSourceVideo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := append([]models.TaskSourceVideo(nil), r.sourceVideos[taskID]...)
	sort.Slice(videos, func(i, j int) bool { return videos[i].Ordinal < videos[j].Ordinal })
	return videos, nil
}

func (r *memoryRepository) UpdateSourceVideoWindow(_ context.Context, id, startTimecode, endTimecode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for taskID, videos := range r.sourceVideos {
		for i := range videos {
			if videos[i].ID != id {
				continue
			}
			videos[i].StartTimecode = startTimecode
			videos[i].EndTimecode = endTimecode
			r.sourceVideos[taskID] = videos
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepository) AddClip(_ context.Context, clip models.VideoClip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = r.now()
	}
	r.clips[clip.TaskID] = append(r.clips[clip.TaskID], clip)
	return nil
}

func (r *memoryRepository) ListClips(_ context.Context, taskID string) ([]models.VideoClip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clips := append([]models.VideoClip(nil), r.clips[taskID]...)
	sort.Slice(clips, func(i, j int) bool { return clips[i].Ordinal < clips[j].Ordinal })
	return clips, nil
}

func (r *memoryRepository) UpsertMergedVideo(_ context.Context, merged models.MergedVideo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mergedVideos[merged.TaskID] = merged
	return nil
}

func (r *memoryRepository) GetMergedVideo(_ context.Context, taskID string) (models.MergedVideo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged, ok := r.mergedVideos[taskID]
	if !ok {
		return models.MergedVideo{}, ErrNotFound
	}
	return merged, nil
}

func (r *memoryRepository) UpsertOutputSegment(_ context.Context, segment models.TaskOutputSegment) (models.TaskOutputSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if segment.SegmentID == "" {
		id, err := generateID()
		if err != nil {
			return models.TaskOutputSegment{}, err
		}
		segment.SegmentID = id
	}
	if _, exists := r.outputSegments[segment.SegmentID]; !exists {
		r.segmentsByTask[segment.TaskID] = append(r.segmentsByTask[segment.TaskID], segment.SegmentID)
	}
	r.outputSegments[segment.SegmentID] = segment
	return segment, nil
}

func (r *memoryRepository) GetOutputSegment(_ context.Context, segmentID string) (models.TaskOutputSegment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	segment, ok := r.outputSegments[segmentID]
	if !ok {
		return models.TaskOutputSegment{}, ErrNotFound
	}
	return segment, nil
}

func (r *memoryRepository) ListOutputSegments(_ context.Context, taskID string) ([]models.TaskOutputSegment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.TaskOutputSegment
	for _, segID := range r.segmentsByTask[taskID] {
		out = append(out, r.outputSegments[segID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartOrder < out[j].PartOrder })
	return out, nil
}

func (r *memoryRepository) ClearTaskArtifacts(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.mergedVideos, taskID)
	delete(r.clips, taskID)
	for _, segID := range r.segmentsByTask[taskID] {
		delete(r.outputSegments, segID)
	}
	delete(r.segmentsByTask, taskID)
	return nil
}

func (r *memoryRepository) ClearOutputSegments(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, segID := range r.segmentsByTask[taskID] {
		delete(r.outputSegments, segID)
	}
	delete(r.segmentsByTask, taskID)
	return nil
}

func (r *memoryRepository) CreateWorkflowInstance(_ context.Context, instance models.WorkflowInstance) (models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
	r.workflows[instance.ID] = instance
	r.workflowsByTask[instance.TaskID] = append(r.workflowsByTask[instance.TaskID], instance.ID)
	return instance, nil
}

func (r *memoryRepository) UpdateWorkflowInstance(_ context.Context, instance models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[instance.ID]; !ok {
		return ErrNotFound
	}
	instance.UpdatedAt = r.now()
	r.workflows[instance.ID] = instance
	return nil
}

func (r *memoryRepository) GetActiveWorkflowInstance(_ context.Context, taskID string) (models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best models.WorkflowInstance
	found := false
	for _, id := range r.workflowsByTask[taskID] {
		wf := r.workflows[id]
		if !found || wf.CreatedAt.After(best.CreatedAt) {
			best = wf
			found = true
		}
	}
	if !found {
		return models.WorkflowInstance{}, ErrNotFound
	}
	return best, nil
}

func (r *memoryRepository) ListWorkflowInstancesByStatus(_ context.Context, statuses ...models.WorkflowStatus) ([]models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[models.WorkflowStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []models.WorkflowInstance
	for _, wf := range r.workflows {
		if len(wanted) == 0 || wanted[wf.Status] {
			out = append(out, wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) CreateLiveRecordTask(_ context.Context, task models.LiveRecordTask) (models.LiveRecordTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
	r.liveRecords[task.ID] = task
	return task, nil
}

func (r *memoryRepository) FinishLiveRecordTask(_ context.Context, taskID string, status models.LiveRecordStatus, endedAt time.Time, bytesWritten int64, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.liveRecords[taskID]
	if !ok {
		return ErrNotFound
	}
	task.Status = status
	task.EndedAt = endedAt
	task.Size = bytesWritten
	task.ErrorMessage = errMessage
	r.liveRecords[taskID] = task
	return nil
}

func (r *memoryRepository) GetActiveLiveRecordTask(_ context.Context, roomID string) (models.LiveRecordTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, task := range r.liveRecords {
		if task.RoomID == roomID && task.Status == models.LiveRecordStatusRecording {
			return task, nil
		}
	}
	return models.LiveRecordTask{}, ErrNotFound
}

func (r *memoryRepository) ListStaleLiveRecordTasks(_ context.Context, olderThan time.Time) ([]models.LiveRecordTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.LiveRecordTask
	for _, task := range r.liveRecords {
		if task.Status == models.LiveRecordStatusRecording && task.StartedAt.Before(olderThan) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) UpdateLiveRecordFilePath(_ context.Context, taskID, filePath string, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.liveRecords[taskID]
	if !ok {
		return ErrNotFound
	}
	task.FilePath = filePath
	task.Size = size
	r.liveRecords[taskID] = task
	return nil
}

func (r *memoryRepository) UpsertAnchor(_ context.Context, anchor models.Anchor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.anchors[anchor.RoomID] = anchor
	return nil
}

func (r *memoryRepository) GetAnchor(_ context.Context, roomID string) (models.Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	anchor, ok := r.anchors[roomID]
	if !ok {
		return models.Anchor{}, ErrNotFound
	}
	return anchor, nil
}

func (r *memoryRepository) ListAutoRecordAnchors(_ context.Context) ([]models.Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Anchor
	for _, anchor := range r.anchors {
		if anchor.AutoRecord {
			out = append(out, anchor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

func (r *memoryRepository) CreateDownloadRecord(_ context.Context, record models.IntegratedDownloadRecord) (models.IntegratedDownloadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
	r.downloads[record.ID] = record
	r.downloadsByTask[record.TaskID] = append(r.downloadsByTask[record.TaskID], record.ID)
	return record, nil
}

func (r *memoryRepository) ListDownloadRecordsByTask(_ context.Context, taskID string) ([]models.IntegratedDownloadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.IntegratedDownloadRecord
	for _, id := range r.downloadsByTask[taskID] {
		out = append(out, r.downloads[id])
	}
	return out, nil
}

func (r *memoryRepository) UpdateDownloadRecordStatus(_ context.Context, id string, status models.DownloadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.downloads[id]
	if !ok {
		return ErrNotFound
	}
	record.Status = status
	r.downloads[id] = record
	return nil
}

func (r *memoryRepository) SaveCredential(_ context.Context, key string, encrypted []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.credentials[key] = append([]byte(nil), encrypted...)
	return nil
}

func (r *memoryRepository) LoadCredential(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	encrypted, ok := r.credentials[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), encrypted...), nil
}

var _ Repository = (*memoryRepository)(nil)
