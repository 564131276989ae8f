package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reactioncut/internal/models"
	"reactioncut/internal/transcoder"
)

// runMergePhase concatenates clipOutputs into one merged file by
// copy-only concat (spec §4.6 step 5), via a generated ffmpeg
// concat-demuxer list file alongside the output.
func runMergePhase(ctx context.Context, runner Transcoder, mergeDir, taskID string, clipOutputs []string) (string, error) {
	if err := os.MkdirAll(mergeDir, 0o755); err != nil {
		return "", fmt.Errorf("workflow: create merge dir: %w", err)
	}

	outputName := SanitizeFilename(taskID) + "_merged.mp4"
	mergeOutput := filepath.Join(mergeDir, outputName)
	listPath := mergeOutput[:len(mergeOutput)-len(filepath.Ext(mergeOutput))] + ".txt"

	if err := transcoder.WriteConcatList(listPath, clipOutputs); err != nil {
		return "", fmt.Errorf("workflow: write concat list: %w", err)
	}

	job := transcoder.ConcatJob(fmt.Sprintf("merge-%s", taskID), listPath, mergeOutput)
	if err := runner.Run(ctx, job); err != nil {
		return "", fmt.Errorf("workflow: merge clips: %w", err)
	}
	return mergeOutput, nil
}

// saveMergedVideo persists the merge output as the task's merged video
// row, discarding any in-flight upload checkpoint from a prior run since
// the underlying file is new.
func saveMergedVideo(ctx context.Context, st Store, taskID, mergePath string) error {
	info, err := os.Stat(mergePath)
	if err != nil {
		return fmt.Errorf("workflow: stat merged video: %w", err)
	}
	merged := models.MergedVideo{TaskID: taskID, Path: mergePath, Size: info.Size()}
	if err := st.UpsertMergedVideo(ctx, merged); err != nil {
		return fmt.Errorf("workflow: save merged video: %w", err)
	}
	return nil
}
