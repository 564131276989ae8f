// Package uploadclient implements the Chunked Upload Client (spec §4.5): a
// resumable state machine that pushes a single file to the upstream object
// endpoint through pre-upload, meta-post, chunked PUT, and finalize steps.
package uploadclient

import "time"

const (
	// UploadSegmentRetryLimit bounds how many times a full upload attempt
	// (pre-upload through finalize, or a resume from a persisted
	// checkpoint) is retried before the caller gives up on the segment.
	UploadSegmentRetryLimit = 3

	// PreuploadParseRetryLimit bounds the separate round counter the
	// Upload Queue advances when the pre-upload response fails to parse
	// as JSON (apperr.KindPreUploadParse), independent of the retry
	// envelope above.
	PreuploadParseRetryLimit = 6

	// retryEnvelopeBase and retryEnvelopeCap bound the backoff between
	// retry-envelope attempts: min(2 * 2^(n-1), 30) seconds.
	retryEnvelopeBase = 2 * time.Second
	retryEnvelopeCap  = 30 * time.Second

	// rateLimitBackoffBase and rateLimitBackoffCap bound the 406 backoff
	// used by the pre-upload and meta-post steps, and by the chunk loop's
	// own 406 handling: min(60 * 2^(n-1), 1800) seconds.
	rateLimitBackoffBase = 60 * time.Second
	rateLimitBackoffCap  = 30 * time.Minute

	// preuploadParseBase and preuploadParseCap bound the Upload Queue's
	// separate preupload_retry_round backoff: min(60 * 2^(round-1), 1800)
	// seconds. internal/uploadqueue reaches this formula through the exported
	// PreuploadParseBackoff instead of duplicating it.
	preuploadParseBase = 60 * time.Second
	preuploadParseCap  = 30 * time.Minute

	// defaultChunkSize is used only when the pre-upload response omits
	// chunk_size, which the real endpoint never does in practice; it
	// exists purely as a defensive fallback.
	defaultChunkSize = 4 * 1024 * 1024

	// Rate-limited progress persistence thresholds (spec §4.5 chunk
	// loop): one checkpoint write per elapsed interval, percent delta, or
	// byte delta, whichever comes first, plus always on completion.
	persistInterval     = 2 * time.Second
	persistPercentDelta = 1.0
	persistByteDelta    = 2 * 1024 * 1024
)

// PreuploadParseBackoff returns the Upload Queue's preupload_retry_round
// backoff duration for the given 1-based round number.
func PreuploadParseBackoff(round int) time.Duration {
	return cappedExponential(round, preuploadParseBase, preuploadParseCap)
}
