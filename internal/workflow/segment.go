package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reactioncut/internal/models"
	"reactioncut/internal/transcoder"
)

// BuildPartTitle renders the title for the index'th part (1-based): the
// configured prefix concatenated with the index when a prefix is set, or
// "P<index>" otherwise (spec §4.6: "build_part_title(prefix, index)").
func BuildPartTitle(prefix string, index int) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return fmt.Sprintf("P%d", index)
	}
	return fmt.Sprintf("%s%d", prefix, index)
}

// ResolveExistingPartTitle keeps a user-edited part_name untouched,
// recomputing it only when it is empty or still carries the unedited
// placeholder "Part <index>" the UI seeds a new segment with.
func ResolveExistingPartTitle(partName string, index int, prefix string) string {
	trimmed := strings.TrimSpace(partName)
	if trimmed == "" || trimmed == fmt.Sprintf("Part %d", index) {
		return BuildPartTitle(prefix, index)
	}
	return trimmed
}

// resolveUpdateNameStartIndex picks the first naming index a VIDEO_UPDATE
// run's newly appended segments should use. A task with no pre-existing
// output segments but an already-uploaded merged video has effectively
// already used index 1 (that merged file was itself submitted as the
// lone part); the update's appended segments continue from 2. Everything
// else continues from one past the highest existing part count.
func resolveUpdateNameStartIndex(existingCount int, hasPriorMergedUpload bool) int {
	if existingCount == 0 {
		if hasPriorMergedUpload {
			return 2
		}
		return 1
	}
	return existingCount + 1
}

// runSegmentPhase splits mergePath into fixed-duration, copy-only pieces
// (spec §4.6 step 6) and returns the produced file paths in order.
func runSegmentPhase(ctx context.Context, runner Transcoder, outputDir, taskID, mergePath string, segmentSeconds int) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("workflow: create output dir: %w", err)
	}
	pattern := filepath.Join(outputDir, "part-%03d.mp4")
	job := transcoder.SegmentJob(fmt.Sprintf("segment-%s", taskID), mergePath, pattern, segmentSeconds)
	if err := runner.Run(ctx, job); err != nil {
		return nil, fmt.Errorf("workflow: segment merged video: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(outputDir, "part-*.mp4"))
	if err != nil {
		return nil, fmt.Errorf("workflow: list segment outputs: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("workflow: segmentation produced no output files")
	}
	return matches, nil
}

// saveOutputSegments replaces all prior output segments for a fresh
// (non-update) run (spec §4.6 step 6, "otherwise replace").
func saveOutputSegments(ctx context.Context, st Store, taskID, prefix string, paths []string) error {
	if err := st.ClearOutputSegments(ctx, taskID); err != nil {
		return fmt.Errorf("workflow: clear prior output segments: %w", err)
	}
	return appendOutputSegments(ctx, st, taskID, prefix, paths, 1, 1)
}

// appendOutputSegments inserts paths as new output segments continuing
// part_order from startOrder and naming from startIndex (spec §4.6 step
// 6, "for VIDEO_UPDATE, append... continuing part_order from existing
// max+1 and naming from the resolved start index").
func appendOutputSegments(ctx context.Context, st Store, taskID, prefix string, paths []string, startOrder, startIndex int) error {
	for i, path := range paths {
		order := startOrder + i
		index := startIndex + i
		segment := models.TaskOutputSegment{
			SegmentID:    fmt.Sprintf("%s-seg-%d", taskID, order),
			TaskID:       taskID,
			PartName:     BuildPartTitle(prefix, index),
			FilePath:     path,
			PartOrder:    order,
			UploadStatus: models.UploadStatusPending,
		}
		if _, err := st.UpsertOutputSegment(ctx, segment); err != nil {
			return fmt.Errorf("workflow: save output segment %s: %w", path, err)
		}
	}
	return nil
}

// outputSegmentStats reports how many output segments a task already has
// and the highest part_order among them, for resolveUpdateNameStartIndex
// and appendOutputSegments' order continuation.
func outputSegmentStats(ctx context.Context, st Store, taskID string) (count int, maxOrder int, err error) {
	segments, err := st.ListOutputSegments(ctx, taskID)
	if err != nil {
		return 0, 0, fmt.Errorf("workflow: list output segments: %w", err)
	}
	for _, seg := range segments {
		count++
		if seg.PartOrder > maxOrder {
			maxOrder = seg.PartOrder
		}
	}
	return count, maxOrder, nil
}
