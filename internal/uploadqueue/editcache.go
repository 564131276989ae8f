package uploadqueue

import (
	"sync"

	"reactioncut/internal/models"
)

// EditCache is the process-wide, mutex-protected mapping from segment_id
// to segment record spec §5 calls out: a staging area for the edit-prepare
// / edit-add-segment / edit-reupload-segment / edit-upload-status /
// edit-upload-clear / edit-submit operations (spec §6) to hold segments
// under active re-upload without touching the persistent store's
// authoritative output_segments rows until the edit is committed.
// Grounded on original_source/src-tauri/src/commands/submission.rs's
// EditUploadState (an Arc<Mutex<HashMap<String, TaskOutputSegmentRecord>>>),
// kept as a plain Go struct per spec §5's "named sync.Mutex-guarded maps"
// requirement rather than folded into the Queue itself.
type EditCache struct {
	mu       sync.Mutex
	segments map[string]models.TaskOutputSegment
}

// NewEditCache constructs an empty EditCache.
func NewEditCache() *EditCache {
	return &EditCache{segments: make(map[string]models.TaskOutputSegment)}
}

// Upsert stores or replaces segment under its SegmentID.
func (c *EditCache) Upsert(segment models.TaskOutputSegment) models.TaskOutputSegment {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments[segment.SegmentID] = segment
	return segment
}

// Get returns the cached segment for segmentID, if any.
func (c *EditCache) Get(segmentID string) (models.TaskOutputSegment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	segment, ok := c.segments[segmentID]
	return segment, ok
}

// Update applies mutate to the cached segment, reporting false if no
// segment with that id is cached.
func (c *EditCache) Update(segmentID string, mutate func(*models.TaskOutputSegment)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	segment, ok := c.segments[segmentID]
	if !ok {
		return false
	}
	mutate(&segment)
	c.segments[segmentID] = segment
	return true
}

// ListByTask returns every cached segment for taskID, optionally filtered
// to segmentIDs when non-empty.
func (c *EditCache) ListByTask(taskID string, segmentIDs ...string) []models.TaskOutputSegment {
	c.mu.Lock()
	defer c.mu.Unlock()

	var filter map[string]struct{}
	if len(segmentIDs) > 0 {
		filter = make(map[string]struct{}, len(segmentIDs))
		for _, id := range segmentIDs {
			filter[id] = struct{}{}
		}
	}

	var out []models.TaskOutputSegment
	for _, segment := range c.segments {
		if segment.TaskID != taskID {
			continue
		}
		if filter != nil {
			if _, ok := filter[segment.SegmentID]; !ok {
				continue
			}
		}
		out = append(out, segment)
	}
	return out
}

// ClearByTask drops every cached segment belonging to taskID, used by
// edit-upload-clear and by a Resegment command clearing stale edit state
// (spec.md line 142: "clears cached edit-segments").
func (c *EditCache) ClearByTask(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, segment := range c.segments {
		if segment.TaskID == taskID {
			delete(c.segments, id)
		}
	}
}
