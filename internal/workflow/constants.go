// Package workflow implements the Submission Workflow Engine (spec §4.6):
// the per-task Wait-Ready -> resolve-sources -> source-readiness probe ->
// clip -> merge -> optional segment -> waiting-upload sequence, plus the
// explicit re-segmentation, repost, and pause/resume/cancel operations.
// Grounded directly on original_source/src-tauri/src/commands/submission.rs's
// run_submission_workflow/ensure_sources_ready/check_sources_ready, which
// this package follows phase for phase, dispatching the clip/merge/segment
// steps to internal/transcoder's blocking worker pool the way the Recorder
// Loop (internal/recorder) dispatches its own remux jobs.
package workflow

import "time"

// Source-readiness probe constants, spec §6.
const (
	SourceReadyStableDelay = 2 * time.Second
	SourceReadyMaxRetries  = 30
	SourceReadyMaxWait     = 30 * time.Second
)

// DefaultSegmentDurationSeconds mirrors models.DefaultSegmentDurationSeconds
// for callers that only import this package.
const DefaultSegmentDurationSeconds = 133
