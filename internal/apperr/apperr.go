// Package apperr defines the tagged error taxonomy used across the
// recorder, workflow, upload, and remote-submission components (spec §7,
// §9), and centralizes the authentication-error detection predicate that
// those components would otherwise each reimplement by substring match.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for retry/backoff/surface decisions.
type Kind string

const (
	KindTransient       Kind = "transient"
	KindRateLimited     Kind = "rate_limited"
	KindAuthRequired    Kind = "auth_required"
	KindPreUploadParse  Kind = "preupload_parse"
	KindBadStream       Kind = "bad_stream"
	KindBadResponse     Kind = "bad_response"
	KindMissingResource Kind = "missing_resource"
	KindPersistent      Kind = "persistent"
	KindValidation      Kind = "validation"
)

// Error is a tagged-kind error. RetryAfter is populated only for
// KindRateLimited when the upstream supplied an explicit Retry-After value.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; 0 means "not specified"
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (kind: %s): %v", e.Message, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s (kind: %s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a tagged Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// RateLimited constructs a KindRateLimited error carrying an optional
// Retry-After hint, used by the Chunked Upload Client (spec §4.5) and the
// Remote Submission Client's refresh envelope.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limited", RetryAfter: retryAfterSeconds}
}

// KindOf extracts the Kind from err, defaulting to KindTransient for
// untagged errors so callers can always branch on a Kind.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindTransient
}

// authErrorSubstrings lists the exact substrings spec §9 calls out for
// centralized authentication-error detection.
var authErrorSubstrings = []string{
	"code: -101",
	"code: -111",
	"code: 86095",
	"not logged in",
	"please log in",
}

// IsAuthError reports whether msg indicates the remote rejected the request
// for lack of (or expired) authentication, by the substring predicate spec
// §9 mandates implementers centralize rather than reimplement per call
// site.
func IsAuthError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range authErrorSubstrings {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

// IsAuthErrorErr is the error-typed counterpart of IsAuthError: it checks
// both an explicit KindAuthRequired tag and a substring match against the
// error's rendered message, so callers can pass either a tagged *Error or a
// raw error returned by an untouched collaborator.
func IsAuthErrorErr(err error) bool {
	if err == nil {
		return false
	}
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind == KindAuthRequired {
		return true
	}
	return IsAuthError(err.Error())
}
