// Package models defines the persisted entities shared by the recorder,
// workflow engine, upload queue, and remote submission client.
package models

import "time"

// VideoType distinguishes an original upload from a reprint/repost.
type VideoType string

const (
	VideoTypeOriginal VideoType = "ORIGINAL"
	VideoTypeReprint  VideoType = "REPRINT"
)

// TaskStatus is the lifecycle state of a SubmissionTask.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusClipping   TaskStatus = "CLIPPING"
	TaskStatusMerging    TaskStatus = "MERGING"
	TaskStatusSegmenting TaskStatus = "SEGMENTING"
	TaskStatusWaitUpload TaskStatus = "WAITING_UPLOAD"
	TaskStatusUploading  TaskStatus = "UPLOADING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// ActiveWorkflowStatuses returns the task statuses that imply a running
// workflow instance, per spec invariant 2.
func ActiveWorkflowStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusClipping, TaskStatusMerging, TaskStatusSegmenting}
}

// SyncConfig captures the per-task options that influence the submission
// workflow (segmentation, update sources, and the chosen naming prefix).
type SyncConfig struct {
	EnableSegmentation    bool                 `json:"enableSegmentation"`
	SegmentDurationSecond int                  `json:"segmentDurationSeconds"`
	SegmentPrefix         string               `json:"segmentPrefix"`
	UpdateSources         []UpdateSourceConfig `json:"updateSources,omitempty"`
}

// UpdateSourceConfig describes one replacement source supplied to a
// VIDEO_UPDATE workflow.
type UpdateSourceConfig struct {
	SourceFilePath string  `json:"sourceFilePath"`
	StartTime      float64 `json:"startTime,omitempty"`
	EndTime        float64 `json:"endTime,omitempty"`
	SortOrder      int     `json:"sortOrder,omitempty"`
}

// DefaultSegmentDurationSeconds is applied when SyncConfig.SegmentDurationSecond is unset.
const DefaultSegmentDurationSeconds = 133

// SubmissionTask is the root aggregate for one clip-and-submit pipeline run.
type SubmissionTask struct {
	TaskID          string
	Title           string
	Description     string
	PartitionID     int
	CollectionID    int
	Tags            []string
	VideoType       VideoType
	CoverURL        string
	SegmentPrefix   string
	Status          TaskStatus
	RemoteIdentifier string // bvid
	RemoteAID       int64
	RemoteState     int
	RejectReason    string
	SyncConfig      SyncConfig
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TaskSourceVideo is one input file contributing to a task's clip phase.
type TaskSourceVideo struct {
	ID            string
	TaskID        string
	FilePath      string
	Ordinal       int
	StartTimecode string
	EndTimecode   string
}

// VideoClip is a clipped output produced from one TaskSourceVideo.
type VideoClip struct {
	TaskID    string
	Path      string
	Ordinal   int
	CreatedAt time.Time
}

// MergedVideo is the concatenation of a task's clips, plus an optional
// in-flight upload checkpoint for merged-mode (non-segmented) uploads.
type MergedVideo struct {
	TaskID string
	Path   string
	Size   int64
	UploadSession
}

// UploadStatus is the per-segment (and per-merged-video) upload state.
type UploadStatus string

const (
	UploadStatusPending     UploadStatus = "PENDING"
	UploadStatusUploading   UploadStatus = "UPLOADING"
	UploadStatusRateLimited UploadStatus = "RATE_LIMITED"
	UploadStatusSuccess     UploadStatus = "SUCCESS"
	UploadStatusFailed      UploadStatus = "FAILED"
)

// UploadSession is the self-contained checkpoint for a single resumable
// chunked upload, per spec §3 and invariant 3.
type UploadSession struct {
	SessionID        string
	BizID             int64
	Endpoint          string
	SessionAuth       string
	URI               string
	ChunkSize         int64
	UploadedBytes     int64
	TotalBytes        int64
	LastPartIndex     int
	ProgressPercent   float64
}

// Resumable reports whether the session checkpoint satisfies invariant 3:
// every required field present and total size matching the file on disk.
func (s UploadSession) Resumable(fileSize int64) bool {
	return s.SessionID != "" &&
		s.Endpoint != "" &&
		s.SessionAuth != "" &&
		s.URI != "" &&
		s.ChunkSize > 0 &&
		s.BizID > 0 &&
		s.TotalBytes == fileSize
}

// Cleared returns a zero-value UploadSession, used when a checkpoint fails
// the Resumable check and must be discarded before reuse.
func Cleared() UploadSession {
	return UploadSession{}
}

// TaskOutputSegment is one finalized, uploadable piece of a task's output.
type TaskOutputSegment struct {
	SegmentID       string
	TaskID          string
	PartName        string
	FilePath        string
	PartOrder       int
	UploadStatus    UploadStatus
	AssignedCID     int64
	RemoteFilename  string
	UploadSession
}

// ValidForSubmission enforces invariant 1: a SUCCESS segment must carry a
// positive cid and a non-empty remote filename.
func (s TaskOutputSegment) ValidForSubmission() bool {
	if s.UploadStatus != UploadStatusSuccess {
		return false
	}
	return s.AssignedCID > 0 && s.RemoteFilename != ""
}

// WorkflowType selects which phase sequence a WorkflowInstance drives.
type WorkflowType string

const (
	WorkflowTypeSubmission WorkflowType = "VIDEO_SUBMISSION"
	WorkflowTypeUpdate     WorkflowType = "VIDEO_UPDATE"
	WorkflowTypeResegment  WorkflowType = "VIDEO_RESEGMENT"
)

// WorkflowStatus is the lifecycle state of a WorkflowInstance.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "PENDING"
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusPaused    WorkflowStatus = "PAUSED"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// WorkflowStep names the phase a running instance currently occupies.
type WorkflowStep string

const (
	WorkflowStepWaitReady WorkflowStep = "WAIT_READY"
	WorkflowStepClip      WorkflowStep = "CLIP"
	WorkflowStepMerge     WorkflowStep = "MERGE"
	WorkflowStepSegment   WorkflowStep = "SEGMENT"
	WorkflowStepUpload    WorkflowStep = "WAIT_UPLOAD"
)

// WorkflowInstance is the persisted execution state of one workflow run for
// a task. A task may have many historical instances; only the most recent
// drives behavior.
type WorkflowInstance struct {
	ID           string
	TaskID       string
	WorkflowType WorkflowType
	Status       WorkflowStatus
	CurrentStep  WorkflowStep
	Progress     float64
	Config       SyncConfig
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LiveRecordStatus is the lifecycle state of a LiveRecordTask.
type LiveRecordStatus string

const (
	LiveRecordStatusRecording LiveRecordStatus = "RECORDING"
	LiveRecordStatusCompleted LiveRecordStatus = "COMPLETED"
	LiveRecordStatusStopped   LiveRecordStatus = "STOPPED"
	LiveRecordStatusFailed    LiveRecordStatus = "FAILED"
)

// LiveRecordTask is one recorded segment file produced by the Recorder Loop.
type LiveRecordTask struct {
	ID           string
	RoomID       string
	FilePath     string
	SegmentIndex int
	Title        string
	Status       LiveRecordStatus
	Size         int64
	StartedAt    time.Time
	EndedAt      time.Time
	ErrorMessage string
}

// Anchor is the locally cached live-status view of a room.
type Anchor struct {
	RoomID     string
	LiveStatus bool
	AutoRecord bool
	Nickname   string
}

// DownloadStatus mirrors the external download agent's lifecycle values.
type DownloadStatus int

const (
	DownloadStatusPending   DownloadStatus = 0
	DownloadStatusRunning   DownloadStatus = 1
	DownloadStatusCompleted DownloadStatus = 2
	DownloadStatusFailed    DownloadStatus = 3
)

// RelationType distinguishes why a download record was created for a task.
type RelationType string

const (
	RelationTypeIntegrated RelationType = "INTEGRATED"
)

// IntegratedDownloadRecord relates a submission task to an external download
// task tracked by an out-of-scope download agent.
type IntegratedDownloadRecord struct {
	ID           string
	TaskID       string
	RelationType RelationType
	SourcePath   string
	Status       DownloadStatus
	CreatedAt    time.Time
}

// UploadedVideoPart is one element of a remote submission's videos array.
type UploadedVideoPart struct {
	Filename string `json:"filename"`
	CID      int64  `json:"cid"`
	Title    string `json:"title"`
}
