package uploadclient

import "time"

// persistTracker decides when a chunk-loop progress checkpoint is worth
// writing, per spec §4.5's rate limit: one write per 2s elapsed, 1%
// progress delta, 2 MiB byte delta, or final completion, whichever comes
// first.
type persistTracker struct {
	totalBytes    int64
	lastBytes     int64
	lastPersistAt time.Time
}

func newPersistTracker(totalBytes int64) *persistTracker {
	return &persistTracker{totalBytes: totalBytes, lastPersistAt: time.Now()}
}

// shouldPersist reports whether the checkpoint at currentBytes should be
// written now.
func (t *persistTracker) shouldPersist(currentBytes int64, final bool) bool {
	if final {
		return true
	}
	if time.Since(t.lastPersistAt) >= persistInterval {
		return true
	}
	delta := currentBytes - t.lastBytes
	if delta >= persistByteDelta {
		return true
	}
	if t.totalBytes > 0 {
		percentDelta := float64(delta) / float64(t.totalBytes) * 100
		if percentDelta >= persistPercentDelta {
			return true
		}
	}
	return false
}

// advance records currentBytes as the most recently persisted checkpoint.
func (t *persistTracker) advance(currentBytes int64) {
	t.lastBytes = currentBytes
	t.lastPersistAt = time.Now()
}
