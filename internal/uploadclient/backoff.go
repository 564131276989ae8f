package uploadclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// cappedExponential computes min(base * 2^(n-1), max) for 1-based attempt
// n, the exact formula spec §4.5 calls out for both the 406 rate-limit
// backoff and the retry-envelope backoff (only the base/cap differ).
func cappedExponential(n int, base, max time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base << (n - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// cappedExponentialBackOff is a backoff.BackOff driving cappedExponential
// off its own attempt counter, so the 406 and retry-envelope loops can be
// run through backoff.Retry like every other retry loop in this codebase
// instead of hand-rolling a for-loop with a sleep.
type cappedExponentialBackOff struct {
	base, max time.Duration
	attempt   int
}

func newCappedExponentialBackOff(base, max time.Duration) *cappedExponentialBackOff {
	return &cappedExponentialBackOff{base: base, max: max}
}

func (b *cappedExponentialBackOff) NextBackOff() time.Duration {
	b.attempt++
	return cappedExponential(b.attempt, b.base, b.max)
}

func (b *cappedExponentialBackOff) Reset() {
	b.attempt = 0
}

var _ backoff.BackOff = (*cappedExponentialBackOff)(nil)

// retryEnvelopeBackOff returns the fresh backoff.BackOff for one logical
// upload attempt's retry envelope (spec: min(2*2^(n-1), 30)s, up to
// UploadSegmentRetryLimit-1 retries beyond the first attempt).
func retryEnvelopeBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(newCappedExponentialBackOff(retryEnvelopeBase, retryEnvelopeCap), UploadSegmentRetryLimit-1)
}

// rateLimitBackOff returns the fresh, uncapped-attempt-count backoff.BackOff
// used while a single pre-upload or meta-post call keeps drawing HTTP 406;
// spec places no attempt ceiling on this loop, only a growing wait.
func rateLimitBackOff() backoff.BackOff {
	return newCappedExponentialBackOff(rateLimitBackoffBase, rateLimitBackoffCap)
}
