package recorder

import (
	"time"

	"reactioncut/internal/chatsocket"
)

// RoomSettings is the per-room configuration the Recorder Loop consults on
// every fetch, tick, and rotation decision. Field names mirror the
// collaborator settings surface documented in spec §4.4.
type RoomSettings struct {
	RoomID string

	// QualityHint is the raw, possibly comma-separated quality setting
	// string; ParseQualityHint extracts the numeric qn from it.
	QualityHint string

	// CuttingMode selects time-based, size-based, or no automatic rotation.
	CuttingMode   CuttingMode
	CuttingNumber int64 // seconds (CuttingModeTime) or MiB (CuttingModeSize)

	CuttingByTitle       bool
	TitleSplitMinSeconds int

	SplitOnMissing bool
	StreamRetryMs  int

	// StreamRetryNoQnSec is the force-no-quality-hint cooldown duration
	// applied after a degradation is detected.
	StreamRetryNoQnSec int

	ChatEnabled bool
	ChatFilters chatsocket.Filters

	// Referer and Cookie are attached to every direct (non-HLS) stream
	// connect attempt, per spec §4.4's streaming branch.
	Referer string
	Cookie  string
}

// StreamRetryDelay returns the configured retry sleep, defaulting to 2s if
// unset.
func (s RoomSettings) StreamRetryDelay() time.Duration {
	if s.StreamRetryMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(s.StreamRetryMs) * time.Millisecond
}

// NoQnCooldown returns the configured force-no-qn cooldown, defaulting to
// StreamRetryNoQnSec seconds or 120s if unset.
func (s RoomSettings) NoQnCooldown() time.Duration {
	if s.StreamRetryNoQnSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(s.StreamRetryNoQnSec) * time.Second
}

// CuttingNumberBytes converts CuttingNumber into bytes for size-based
// rotation (spec §4.4: "bytes_written >= cutting_number * 1 MiB").
func (s RoomSettings) CuttingNumberBytes() int64 {
	return s.CuttingNumber * 1024 * 1024
}

// CuttingNumberDuration converts CuttingNumber into a duration for
// time-based rotation.
func (s RoomSettings) CuttingNumberDuration() time.Duration {
	return time.Duration(s.CuttingNumber) * time.Second
}

// TitleSplitMinDuration converts TitleSplitMinSeconds into a duration.
func (s RoomSettings) TitleSplitMinDuration() time.Duration {
	return time.Duration(s.TitleSplitMinSeconds) * time.Second
}
