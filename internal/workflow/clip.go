package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"reactioncut/internal/models"
	"reactioncut/internal/transcoder"
)

// mergeTargetCodec is the codec the merge phase's copy-only concat
// requires every clip to already share; a source whose own video codec
// doesn't match it cannot be trimmed by a copy-only cut and falls back to
// a re-encode.
const mergeTargetCodec = "h264"

// decideClipCopy inspects src's video codec and picks the copy-only trim
// when it already matches mergeTargetCodec, falling back to a re-encode
// (and logging why) on any probe failure or codec mismatch (spec §4.6
// step 4: "decide copy-vs-reencode via a helper that inspects timestamps;
// if decision fails, fall back to reencode and log the reason").
func decideClipCopy(ctx context.Context, prober Prober, path string, logger *slog.Logger) bool {
	codec, err := prober.VideoCodec(ctx, path)
	if err != nil {
		logger.Warn("clip copy decision failed, falling back to reencode", "source", path, "error", err)
		return false
	}
	return codec == mergeTargetCodec
}

// runClipPhase emits one clip file per ready source, in order, dispatched
// onto the transcoder worker pool (spec §4.6 step 4). Clip file names are
// ordinal-indexed so the merge phase's concat list preserves source
// order regardless of filesystem directory listing order.
func runClipPhase(ctx context.Context, runner Transcoder, prober Prober, clipDir string, sources []readySource, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return nil, fmt.Errorf("workflow: create clip dir: %w", err)
	}

	outputs := make([]string, 0, len(sources))
	for i, src := range sources {
		outPath := filepath.Join(clipDir, fmt.Sprintf("clip-%03d.mp4", i+1))
		useCopy := decideClipCopy(ctx, prober, src.Video.FilePath, logger)

		var job transcoder.Job
		if useCopy {
			job = transcoder.ClipCopyJob(fmt.Sprintf("clip-%s-%d", src.Video.TaskID, i+1), src.Video.FilePath, outPath, src.Start, src.End)
		} else {
			job = transcoder.ClipReencodeJob(fmt.Sprintf("clip-%s-%d", src.Video.TaskID, i+1), src.Video.FilePath, outPath, src.Start, src.End)
		}
		if err := runner.Run(ctx, job); err != nil {
			return nil, fmt.Errorf("workflow: clip %s: %w", src.Video.FilePath, err)
		}
		outputs = append(outputs, outPath)
	}
	return outputs, nil
}

// saveClips persists the clip outputs for a task, replacing any prior
// clips for a fresh (non-update) run, or leaving prior clips alongside
// the new ones for an update run — mirroring the "replace=!is_update"
// flag the clip-save step carries in the reference implementation.
func saveClips(ctx context.Context, st Store, taskID string, clipPaths []string, replace bool) error {
	if replace {
		if err := st.ClearTaskArtifacts(ctx, taskID); err != nil {
			return fmt.Errorf("workflow: clear prior artifacts: %w", err)
		}
	}
	for i, path := range clipPaths {
		clip := models.VideoClip{TaskID: taskID, Path: path, Ordinal: i + 1}
		if err := st.AddClip(ctx, clip); err != nil {
			return fmt.Errorf("workflow: save clip %s: %w", path, err)
		}
	}
	return nil
}
