package uploadqueue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"reactioncut/internal/apperr"
	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
	"reactioncut/internal/remoteapi"
	"reactioncut/internal/store"
	"reactioncut/internal/uploadclient"
	"reactioncut/internal/workflow"
)

// uploadTask drives one WAITING_UPLOAD task through upload, submit, and
// (for a fresh submission with a collection) add-to-collection, exactly
// following original_source's run_submission_upload. Any failure marks
// the task FAILED and returns the error for the caller to log; nothing
// here panics or leaves the task mid-transition.
func (q *Queue) uploadTask(ctx context.Context, task models.SubmissionTask) error {
	tags := strings.TrimSpace(strings.Join(task.Tags, ","))
	if tags == "" {
		return q.fail(ctx, task.TaskID, apperr.New(apperr.KindValidation, apperr.MsgMissingTags))
	}

	auth, err := q.ensureCredentials(ctx)
	if err != nil {
		return q.fail(ctx, task.TaskID, err)
	}
	if auth.CSRF == "" {
		return q.fail(ctx, task.TaskID, apperr.New(apperr.KindAuthRequired, "missing csrf after credential refresh"))
	}

	isUpdate, err := q.isUpdateWorkflow(ctx, task.TaskID)
	if err != nil {
		return q.fail(ctx, task.TaskID, err)
	}

	uploading := models.TaskStatusUploading
	if _, err := q.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &uploading}); err != nil {
		return fmt.Errorf("uploadqueue: mark uploading: %w", err)
	}

	segmented := isUpdate || task.SyncConfig.EnableSegmentation

	var parts []remoteapi.VideoPart
	if segmented {
		parts, err = q.segmentedUpload(ctx, task, isUpdate)
	} else {
		parts, err = q.mergedUpload(ctx, task)
	}
	if err != nil {
		return q.fail(ctx, task.TaskID, err)
	}
	if len(parts) == 0 {
		return q.fail(ctx, task.TaskID, apperr.New(apperr.KindValidation, apperr.MsgSubmissionPartsEmpty))
	}

	info := remoteapi.SubmissionInfo{
		Title:        task.Title,
		Description:  task.Description,
		CoverURL:     task.CoverURL,
		PartitionID:  int64(task.PartitionID),
		Tags:         tags,
		Original:     task.VideoType != models.VideoTypeReprint,
		CollectionID: int64(task.CollectionID),
	}

	if err := q.submit(ctx, task, info, parts, isUpdate); err != nil {
		return q.fail(ctx, task.TaskID, err)
	}

	completed := models.TaskStatusCompleted
	if _, err := q.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &completed}); err != nil {
		return fmt.Errorf("uploadqueue: mark completed: %w", err)
	}
	return nil
}

func (q *Queue) fail(ctx context.Context, taskID string, cause error) error {
	failed := models.TaskStatusFailed
	if _, err := q.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &failed}); err != nil {
		return fmt.Errorf("uploadqueue: mark failed after %v: %w", cause, err)
	}
	return cause
}

func (q *Queue) isUpdateWorkflow(ctx context.Context, taskID string) (bool, error) {
	instance, err := q.Store.GetActiveWorkflowInstance(ctx, taskID)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("uploadqueue: load workflow instance: %w", err)
	}
	return instance.WorkflowType == models.WorkflowTypeUpdate, nil
}

// ensureCredentials loads the stored session, refreshing once up front if
// it is absent or carries no csrf (spec §4.7: "refresh credentials if
// missing; get csrf").
func (q *Queue) ensureCredentials(ctx context.Context) (mediaclient.AuthInfo, error) {
	auth, err := q.Credentials.Load(ctx)
	if err == nil && auth.Cookie != "" && auth.CSRF != "" {
		return auth, nil
	}
	if q.Refresher == nil {
		if err != nil {
			return mediaclient.AuthInfo{}, fmt.Errorf("uploadqueue: load credentials: %w", err)
		}
		return auth, nil
	}
	refreshed, err := q.Refresher.RefreshCookie(ctx, q.Credentials)
	if err != nil {
		return mediaclient.AuthInfo{}, fmt.Errorf("uploadqueue: refresh credentials: %w", err)
	}
	return refreshed, nil
}

// segmentedUpload drives the segment retry loop (spec §4.7 "segmented
// mode"): batches of up to UploadConcurrency pending segments upload in
// parallel each round, classified into success / pre-upload-parse-retry /
// hard-failure, until every segment is SUCCESS.
func (q *Queue) segmentedUpload(ctx context.Context, task models.SubmissionTask, isUpdate bool) ([]remoteapi.VideoPart, error) {
	round := 0
	for {
		segments, err := q.Store.ListOutputSegments(ctx, task.TaskID)
		if err != nil {
			return nil, fmt.Errorf("uploadqueue: list output segments: %w", err)
		}
		if len(segments) == 0 {
			return nil, apperr.New(apperr.KindValidation, apperr.MsgNoOutputSegments)
		}
		for _, seg := range segments {
			if seg.UploadStatus == models.UploadStatusFailed {
				return nil, apperr.New(apperr.KindPersistent, apperr.MsgSegmentUploadFailed)
			}
		}

		var pending []models.TaskOutputSegment
		for _, seg := range segments {
			if seg.UploadStatus != models.UploadStatusSuccess {
				pending = append(pending, seg)
			}
		}
		if len(pending) == 0 {
			return buildSegmentParts(segments, task.SegmentPrefix, isUpdate), nil
		}

		batchSize := q.UploadConcurrency
		if batchSize > len(pending) {
			batchSize = len(pending)
		}
		batch := pending[:batchSize]
		for _, seg := range batch {
			seg.UploadStatus = models.UploadStatusUploading
			if _, err := q.Store.UpsertOutputSegment(ctx, seg); err != nil {
				return nil, fmt.Errorf("uploadqueue: mark segment uploading: %w", err)
			}
		}

		outcomes := make([]segmentOutcome, len(batch))
		var g errgroup.Group
		for i, seg := range batch {
			i, seg := i, seg
			g.Go(func() error {
				result, err := q.uploadOneSegment(ctx, seg)
				outcomes[i] = segmentOutcome{segment: seg, result: result, err: err}
				return nil
			})
		}
		_ = g.Wait()

		hasOther, hasParseError, err := q.applySegmentOutcomes(ctx, outcomes)
		if err != nil {
			return nil, err
		}
		if hasOther {
			return nil, apperr.New(apperr.KindPersistent, apperr.MsgSegmentUploadFailed)
		}
		if hasParseError {
			round++
			if round > uploadclient.PreuploadParseRetryLimit {
				return nil, apperr.New(apperr.KindPreUploadParse, apperr.MsgPreUploadParseLimit)
			}
			q.sleep(ctx, uploadclient.PreuploadParseBackoff(round))
		} else {
			round = 0
		}
	}
}

type segmentOutcome struct {
	segment models.TaskOutputSegment
	result  uploadclient.Result
	err     error
}

func (q *Queue) applySegmentOutcomes(ctx context.Context, outcomes []segmentOutcome) (hasOther, hasParseError bool, err error) {
	for _, outcome := range outcomes {
		seg := outcome.segment
		switch {
		case outcome.err == nil:
			seg.UploadStatus = models.UploadStatusSuccess
			seg.AssignedCID = outcome.result.CID
			seg.RemoteFilename = outcome.result.Filename
			seg.UploadSession = outcome.result.Session
		case apperr.KindOf(outcome.err) == apperr.KindPreUploadParse:
			seg.UploadSession = models.Cleared()
			seg.UploadStatus = models.UploadStatusPending
			hasParseError = true
		default:
			seg.UploadStatus = models.UploadStatusFailed
			hasOther = true
			q.logger().Warn("uploadqueue: segment upload failed", "segment_id", seg.SegmentID, "error", outcome.err)
		}
		if _, upsertErr := q.Store.UpsertOutputSegment(ctx, seg); upsertErr != nil {
			return false, false, fmt.Errorf("uploadqueue: persist segment result: %w", upsertErr)
		}
	}
	return hasOther, hasParseError, nil
}

func (q *Queue) uploadOneSegment(ctx context.Context, seg models.TaskOutputSegment) (uploadclient.Result, error) {
	info, err := os.Stat(seg.FilePath)
	if err != nil {
		return uploadclient.Result{}, fmt.Errorf("uploadqueue: stat segment file: %w", err)
	}
	req := uploadclient.Request{
		FilePath:     seg.FilePath,
		FileSize:     info.Size(),
		Name:         baseNameNoExt(seg.FilePath),
		Profile:      uploadProfile,
		PreUploadURL: preUploadURL,
		Checkpoint:   seg.UploadSession,
		Store:        segmentSessionStore{store: q.Store, segmentID: seg.SegmentID},
		Credentials:  q.Credentials,
		Refresher:    q.Refresher,
	}
	return q.Uploader.Upload(ctx, req)
}

// buildSegmentParts renders the finished segments into submission parts in
// part_order, recomputing each title the way original_source's
// build_uploaded_parts does rather than trusting whatever title was
// stamped on the row at segmentation time: an update workflow preserves a
// user-edited part_name, a first-time submission always rebuilds it fresh.
func buildSegmentParts(segments []models.TaskOutputSegment, prefix string, isUpdate bool) []remoteapi.VideoPart {
	parts := make([]remoteapi.VideoPart, 0, len(segments))
	for i, seg := range segments {
		index := i + 1
		title := workflow.BuildPartTitle(prefix, index)
		if isUpdate {
			title = workflow.ResolveExistingPartTitle(seg.PartName, index, prefix)
		}
		parts = append(parts, remoteapi.VideoPart{
			Filename: seg.RemoteFilename,
			CID:      seg.AssignedCID,
			Title:    title,
		})
	}
	return parts
}

// mergedUpload drives merged (non-segmented) mode: one file, uploaded
// once, its own retry/refresh handled inside Uploader.Upload already.
func (q *Queue) mergedUpload(ctx context.Context, task models.SubmissionTask) ([]remoteapi.VideoPart, error) {
	merged, err := q.Store.GetMergedVideo(ctx, task.TaskID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMissingResource, apperr.MsgMergedVideoMissing, err)
	}
	if strings.TrimSpace(merged.Path) == "" {
		return nil, apperr.New(apperr.KindValidation, apperr.MsgMergedVideoPathEmpty)
	}

	req := uploadclient.Request{
		FilePath:     merged.Path,
		FileSize:     merged.Size,
		Name:         baseNameNoExt(merged.Path),
		Profile:      uploadProfile,
		PreUploadURL: preUploadURL,
		Checkpoint:   merged.UploadSession,
		Store:        mergedSessionStore{store: q.Store, taskID: task.TaskID},
		Credentials:  q.Credentials,
		Refresher:    q.Refresher,
	}
	result, err := q.Uploader.Upload(ctx, req)
	if err != nil {
		return nil, err
	}

	merged.UploadSession = result.Session
	if err := q.Store.UpsertMergedVideo(ctx, merged); err != nil {
		return nil, fmt.Errorf("uploadqueue: persist merged upload result: %w", err)
	}

	return []remoteapi.VideoPart{{
		Filename: result.Filename,
		CID:      result.CID,
		Title:    workflow.BuildPartTitle(task.SegmentPrefix, 1),
	}}, nil
}

// submit composes the create/edit batching call and, for a fresh
// submission landing in a collection, the add-to-collection follow-up
// (original_source's run_submission_upload tail).
func (q *Queue) submit(ctx context.Context, task models.SubmissionTask, info remoteapi.SubmissionInfo, parts []remoteapi.VideoPart, isUpdate bool) error {
	if isUpdate {
		aid := task.RemoteAID
		if aid <= 0 {
			resolved, err := q.Submitter.FetchAIDByBVID(ctx, task.RemoteIdentifier)
			if err == nil && resolved > 0 {
				aid = resolved
				newAID := aid
				_, _ = q.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{RemoteAID: &newAID})
			}
		}
		if aid <= 0 {
			return apperr.New(apperr.KindValidation, apperr.MsgMissingAIDForUpdate)
		}
		return q.Submitter.SubmitUpdate(ctx, info, parts, aid)
	}

	result, err := q.Submitter.Submit(ctx, info, parts)
	if err != nil {
		return err
	}
	bvid, newAID := result.BVID, result.AID
	if _, err := q.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{RemoteIdentifier: &bvid, RemoteAID: &newAID}); err != nil {
		return fmt.Errorf("uploadqueue: persist bvid/aid: %w", err)
	}
	if task.CollectionID > 0 {
		cid := parts[0].CID
		if err := q.Submitter.AddToCollection(ctx, task.Title, int64(task.CollectionID), result.AID, cid); err != nil {
			return err
		}
	}
	return nil
}

func baseNameNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
