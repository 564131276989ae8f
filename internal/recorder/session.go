package recorder

import "time"

// splitReason identifies which trigger requested the pending rotation,
// used only for logging.
type splitReason string

const (
	splitReasonExplicit splitReason = "explicit"
	splitReasonTime     splitReason = "time"
	splitReasonSize     splitReason = "size"
	splitReasonTitle    splitReason = "title"
	splitReasonMissing  splitReason = "missing"
)

// session is the mutable per-room state threaded through one Recorder Loop
// run: the local variables original_source/src-tauri/src/live_recorder.rs's
// run_record_loop closes over, gathered into one struct so the loop body
// and its decision helpers can be tested independently of any real
// network or file IO.
type session struct {
	title            string
	pendingTitle     string
	segmentStartedAt time.Time

	pendingSplit bool
	splitReason  splitReason

	missingSince time.Time // zero means "not currently missing"

	haveLastTimestamp bool
	lastTimestamp     uint32
	stagnantCount     int
	lastProgressAt    time.Time

	forceNoQnUntil time.Time
}

func newSession(title string, now time.Time) *session {
	return &session{title: title, segmentStartedAt: now, lastProgressAt: now}
}

// onNewSegment resets the per-segment clock and pending-split flag after a
// rotation has taken effect.
func (s *session) onNewSegment(now time.Time) {
	s.segmentStartedAt = now
	s.pendingSplit = false
	s.splitReason = ""
}

func (s *session) segmentAge(now time.Time) time.Duration {
	return now.Sub(s.segmentStartedAt)
}

// requestSplit marks an explicit collaborator-initiated rotation request
// (spec §4.4 trigger 1).
func (s *session) requestSplit() {
	s.pendingSplit = true
	s.splitReason = splitReasonExplicit
}

// checkTimeBasedSplit evaluates trigger 2: cutting_mode=1 and elapsed
// segment seconds >= cutting_number.
func (s *session) checkTimeBasedSplit(settings RoomSettings, now time.Time) {
	if settings.CuttingMode != CuttingModeTime || settings.CuttingNumber <= 0 {
		return
	}
	if s.segmentAge(now) >= settings.CuttingNumberDuration() {
		s.pendingSplit = true
		s.splitReason = splitReasonTime
	}
}

// checkSizeBasedSplit evaluates trigger 3: cutting_mode=2 and
// bytes_written >= cutting_number * 1 MiB.
func (s *session) checkSizeBasedSplit(settings RoomSettings, bytesWritten int64) {
	if settings.CuttingMode != CuttingModeSize || settings.CuttingNumber <= 0 {
		return
	}
	if bytesWritten >= settings.CuttingNumberBytes() {
		s.pendingSplit = true
		s.splitReason = splitReasonSize
	}
}

// observeTitle evaluates trigger 4: a title change either rotates
// immediately (if the segment is already old enough) or is remembered and
// re-checked on every subsequent tick until it is, per spec §4.4.
func (s *session) observeTitle(newTitle string, settings RoomSettings, now time.Time) {
	if !settings.CuttingByTitle || newTitle == "" || newTitle == s.title {
		return
	}
	s.pendingTitle = newTitle
	s.applyPendingTitleIfDue(settings, now)
}

func (s *session) applyPendingTitleIfDue(settings RoomSettings, now time.Time) {
	if s.pendingTitle == "" {
		return
	}
	if s.segmentAge(now) < settings.TitleSplitMinDuration() {
		return
	}
	s.title = s.pendingTitle
	s.pendingTitle = ""
	s.pendingSplit = true
	s.splitReason = splitReasonTitle
}

// readyToRotate is the gate spec §4.4 imposes on every pending split: it
// may only take effect at a video keyframe, and only once the Header Cache
// holds a header to prime the new segment with.
func (s *session) readyToRotate(isKeyframe, headerCacheReady bool) bool {
	return s.pendingSplit && isKeyframe && headerCacheReady
}

// recordProgress updates the stagnant-tag counters from one tag's
// timestamp and reports whether the invalid-flow threshold (spec §4.4:
// >=300 consecutive non-advancing tags AND >=10s since the last advance)
// has now been crossed.
func (s *session) recordProgress(timestamp uint32, now time.Time) (degraded bool) {
	if !s.haveLastTimestamp || timestamp > s.lastTimestamp {
		s.haveLastTimestamp = true
		s.lastTimestamp = timestamp
		s.stagnantCount = 0
		s.lastProgressAt = now
		return false
	}
	s.stagnantCount++
	if s.stagnantCount < InvalidStreamTagLimit {
		return false
	}
	return now.Sub(s.lastProgressAt) >= InvalidStreamStallSecs*time.Second
}

// markDegraded applies the degradation response: a force-no-qn cooldown
// that extends (never shortens) any cooldown already in effect, per spec
// §4.4.
func (s *session) markDegraded(settings RoomSettings, now time.Time) {
	candidate := now.Add(settings.NoQnCooldown())
	if candidate.After(s.forceNoQnUntil) {
		s.forceNoQnUntil = candidate
	}
	s.haveLastTimestamp = false
	s.stagnantCount = 0
	s.lastProgressAt = now
}

func (s *session) forceNoQnActive(now time.Time) bool {
	return now.Before(s.forceNoQnUntil)
}

// markMissing starts (if not already running) the "missing since" clock
// spec §4.4's gap handling keys off.
func (s *session) markMissing(now time.Time) {
	if s.missingSince.IsZero() {
		s.missingSince = now
	}
}

func (s *session) clearMissing() {
	s.missingSince = time.Time{}
}

func (s *session) isMissing() bool {
	return !s.missingSince.IsZero()
}

func (s *session) missingElapsed(now time.Time) time.Duration {
	if s.missingSince.IsZero() {
		return 0
	}
	return now.Sub(s.missingSince)
}

// shouldForceSplitOnGap evaluates spec §4.4 trigger 5: rotate once the
// missing window has elapsed, or immediately if the setting allows
// split-on-missing.
func (s *session) shouldForceSplitOnGap(settings RoomSettings, now time.Time) bool {
	if !s.isMissing() {
		return false
	}
	if settings.SplitOnMissing {
		return true
	}
	return s.missingElapsed(now) >= MissingSegmentWindowSecs*time.Second
}
