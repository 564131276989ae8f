package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
	"reactioncut/internal/workflow"
)

// editPrepareResponse mirrors the detail shape edit-prepare returns,
// projecting a staged segment onto the response without persisting it
// when the task has not been segmented yet (original_source's
// submission_edit_prepare).
type editPrepareResponse struct {
	TaskID   string                      `json:"taskId"`
	Segments []models.TaskOutputSegment `json:"segments"`
}

// EditPrepare implements submission edit-prepare (spec §6): a view-only
// staging step. If the task already has persisted output segments, those
// are staged into the EditCache as-is; otherwise a single projected
// segment is derived from the task's merged video so the caller has
// something to edit before any segmentation has run. Grounded on
// original_source's submission_edit_prepare, with the projection staged
// into the in-memory EditCache instead of returned-but-not-persisted,
// since reactioncut's edit-* operations all read back through the cache.
func (h *Handler) EditPrepare(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx := r.Context()
	segments, err := h.Store.ListOutputSegments(ctx, taskID)
	if err != nil {
		WriteRequestError(w, err)
		return
	}

	if len(segments) == 0 {
		task, err := h.Store.GetTask(ctx, taskID)
		if err != nil {
			WriteRequestError(w, translateStoreErr(err, "task not found"))
			return
		}
		merged, err := h.Store.GetMergedVideo(ctx, taskID)
		if err != nil {
			WriteRequestError(w, notFound("task has no merged video to project a segment from"))
			return
		}
		projected := models.TaskOutputSegment{
			SegmentID:    "staged-" + taskID,
			TaskID:       taskID,
			PartName:     workflow.BuildPartTitle(task.SegmentPrefix, 1),
			FilePath:     merged.Path,
			PartOrder:    1,
			UploadStatus: models.UploadStatusPending,
		}
		if task.Status == models.TaskStatusCompleted {
			projected.UploadStatus = models.UploadStatusSuccess
		}
		projected.UploadSession = merged.UploadSession
		segments = []models.TaskOutputSegment{projected}
	}

	for _, seg := range segments {
		h.EditCache.Upsert(seg)
	}
	WriteJSON(w, http.StatusOK, editPrepareResponse{TaskID: taskID, Segments: segments})
}

// editAddSegmentRequest carries the file to stage as a new segment at the
// end of the task's part order.
type editAddSegmentRequest struct {
	TaskID   string `json:"taskId"`
	FilePath string `json:"filePath"`
	PartName string `json:"partName,omitempty"`
}

// EditAddSegment implements submission edit-add-segment (spec §6): stages
// a new PENDING segment in the EditCache from a file already on disk,
// appended after the highest existing part_order. Grounded on
// original_source's submission_edit_add_segment.
func (h *Handler) EditAddSegment(w http.ResponseWriter, r *http.Request) {
	var req editAddSegmentRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	taskID := strings.TrimSpace(req.TaskID)
	filePath := strings.TrimSpace(req.FilePath)
	if taskID == "" || filePath == "" {
		WriteRequestError(w, badRequest("taskId and filePath are required"))
		return
	}
	if _, err := os.Stat(filePath); err != nil {
		WriteRequestError(w, badRequest(fmt.Sprintf("file does not exist: %s", filePath)))
		return
	}

	existing := h.EditCache.ListByTask(taskID)
	nextOrder := 1
	for _, seg := range existing {
		if seg.PartOrder >= nextOrder {
			nextOrder = seg.PartOrder + 1
		}
	}
	partName := strings.TrimSpace(req.PartName)
	if partName == "" {
		partName = workflow.BuildPartTitle("", nextOrder)
	}

	segment := models.TaskOutputSegment{
		SegmentID:    fmt.Sprintf("staged-%s-%d", taskID, nextOrder),
		TaskID:       taskID,
		PartName:     partName,
		FilePath:     filePath,
		PartOrder:    nextOrder,
		UploadStatus: models.UploadStatusPending,
	}
	segment.TotalBytes = statFileSize(filePath)
	h.EditCache.Upsert(segment)
	WriteJSON(w, http.StatusCreated, segment)
}

// editReuploadSegmentRequest names the staged segment whose upload
// checkpoint should be discarded so the Upload Queue starts it fresh.
type editReuploadSegmentRequest struct {
	SegmentID string `json:"segmentId"`
}

// EditReuploadSegment implements submission edit-reupload-segment
// (spec §6): clears a staged segment's upload session and cid/filename so
// edit-submit re-sends it as a brand new upload.
func (h *Handler) EditReuploadSegment(w http.ResponseWriter, r *http.Request) {
	var req editReuploadSegmentRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	ok := h.EditCache.Update(req.SegmentID, func(seg *models.TaskOutputSegment) {
		seg.UploadStatus = models.UploadStatusPending
		seg.UploadSession = models.Cleared()
		seg.AssignedCID = 0
		seg.RemoteFilename = ""
	})
	if !ok {
		WriteRequestError(w, notFound("segment is not staged for edit"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "segment marked for reupload"})
}

// EditUploadStatus implements submission edit-upload-status (spec §6): the
// staged segments for a task, for the UI to poll while edit-submit's
// Upload Queue run is in flight.
func (h *Handler) EditUploadStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	segments := h.EditCache.ListByTask(taskID)
	WriteJSON(w, http.StatusOK, map[string]any{"taskId": taskID, "segments": segments})
}

// EditUploadClear implements submission edit-upload-clear (spec §6):
// discards every staged segment for a task without touching the
// persistent store, abandoning an in-progress edit.
func (h *Handler) EditUploadClear(w http.ResponseWriter, r *http.Request, taskID string) {
	h.EditCache.ClearByTask(taskID)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "edit state cleared"})
}

// EditSubmit implements submission edit-submit (spec §6): commits every
// staged segment back to the persistent store as the task's authoritative
// output segments, replacing whatever was there before, and hands the
// task to the Upload Queue the same way upload-execute does. Grounded on
// original_source's submission_edit_submit, diverging from its inline
// synchronous submit call in favor of the async Upload Queue consumer for
// the same reason retry-segment-upload does.
func (h *Handler) EditSubmit(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx := r.Context()
	staged := h.EditCache.ListByTask(taskID)
	if len(staged) == 0 {
		WriteRequestError(w, badRequest("no staged segments for task"))
		return
	}

	task, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "task not found"))
		return
	}
	if task.Status == models.TaskStatusUploading {
		WriteRequestError(w, conflict("task is currently uploading"))
		return
	}

	if err := h.Store.ClearOutputSegments(ctx, taskID); err != nil {
		WriteRequestError(w, err)
		return
	}
	for _, seg := range staged {
		seg.TaskID = taskID
		if strings.HasPrefix(seg.SegmentID, "staged-") {
			seg.SegmentID = "" // let the store mint a durable id
		}
		if _, err := h.Store.UpsertOutputSegment(ctx, seg); err != nil {
			WriteRequestError(w, fmt.Errorf("persist staged segment: %w", err))
			return
		}
	}
	h.EditCache.ClearByTask(taskID)

	waiting := models.TaskStatusWaitUpload
	if _, err := h.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &waiting}); err != nil {
		WriteRequestError(w, err)
		return
	}
	if h.Queue != nil {
		h.Queue.Enqueue(ctx)
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "edit committed and queued for upload"})
}
