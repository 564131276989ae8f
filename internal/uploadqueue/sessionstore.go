package uploadqueue

import (
	"context"
	"fmt"

	"reactioncut/internal/models"
)

// segmentSessionStore adapts one TaskOutputSegment row to
// uploadclient.SessionStore, so the Chunked Upload Client can persist its
// resumable checkpoint mid-upload without knowing about segments at all.
type segmentSessionStore struct {
	store     Store
	segmentID string
}

func (s segmentSessionStore) Persist(ctx context.Context, session models.UploadSession, status models.UploadStatus) error {
	seg, err := s.store.GetOutputSegment(ctx, s.segmentID)
	if err != nil {
		return fmt.Errorf("uploadqueue: reload segment for checkpoint: %w", err)
	}
	seg.UploadSession = session
	seg.UploadStatus = status
	_, err = s.store.UpsertOutputSegment(ctx, seg)
	return err
}

// mergedSessionStore adapts the one MergedVideo row belonging to a task to
// uploadclient.SessionStore for merged (non-segmented) uploads.
type mergedSessionStore struct {
	store  Store
	taskID string
}

func (s mergedSessionStore) Persist(ctx context.Context, session models.UploadSession, _ models.UploadStatus) error {
	merged, err := s.store.GetMergedVideo(ctx, s.taskID)
	if err != nil {
		return fmt.Errorf("uploadqueue: reload merged video for checkpoint: %w", err)
	}
	merged.UploadSession = session
	return s.store.UpsertMergedVideo(ctx, merged)
}
