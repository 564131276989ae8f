// Package recorder implements the Recorder Loop and HLS sub-recorder (spec
// §4.4): a per-room state machine that fetches a short-lived playback URL,
// pulls bytes, drives internal/flvstream's Parser and HeaderCache, owns the
// current internal/segmentwriter.Writer, honors split/stop signals, spawns
// a post-segment remux job through internal/transcoder, and drains a chat
// sidecar through internal/chatsocket. Grounded directly on
// original_source/src-tauri/src/live_recorder.rs's run_record_loop, which
// this package follows step for step while trading its thread-per-room
// blocking design for the same shape in Go (one goroutine per room, reading
// synchronously, per spec §5).
package recorder

import "time"

// Constants exposed to implementers, spec §6.
const (
	InvalidStreamTagLimit    = 300
	InvalidStreamStallSecs   = 10
	StreamURLRefreshLeadSecs = 30
	MissingSegmentWindowSecs = 60

	StaleRecordRemuxMaxAge       = 36 * time.Hour
	StaleRecordIdleThreshold     = 30 * time.Minute
	StaleRecordSweepInterval     = 10 * time.Minute
)

// CuttingMode selects the Recorder Loop's time/size rotation policy.
type CuttingMode int

const (
	CuttingModeOff  CuttingMode = 0
	CuttingModeTime CuttingMode = 1
	CuttingModeSize CuttingMode = 2
)
