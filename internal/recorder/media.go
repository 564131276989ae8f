package recorder

import (
	"context"
	"io"
	"strings"

	"reactioncut/internal/apperr"
)

// PlaybackURL is one candidate source the collaborator's media client
// offered for a room, in preference order.
type PlaybackURL struct {
	URL string
}

// IsHLS reports whether the URL is an HLS-style playlist, which the
// Recorder Loop delegates to the HLS sub-recorder instead of reading
// directly (spec §4.4 container branching).
func (p PlaybackURL) IsHLS() bool {
	return strings.Contains(p.URL, ".m3u8")
}

// PlaybackSource is the collaborator's media client: given a room and a
// quality hint (0 to omit it, per the force-no-qn cooldown), it returns one
// or more candidate playback URLs in preference order.
type PlaybackSource interface {
	FetchPlaybackURLs(ctx context.Context, roomID string, qualityHint int) ([]PlaybackURL, error)
}

// StreamRequest carries the headers the Recorder Loop's streaming branch
// attaches to every connect attempt (spec §4.4: identity encoding,
// platform referer, session cookie).
type StreamRequest struct {
	URL     string
	Referer string
	Cookie  string
}

// StreamResponse is the opened connection the streaming branch reads tags
// from.
type StreamResponse struct {
	StatusCode      int
	ContentType     string
	ContentEncoding string
	Body            io.ReadCloser
}

// StreamOpener performs the HTTP GET the streaming branch uses to open a
// direct (non-HLS) playback URL.
type StreamOpener interface {
	Open(ctx context.Context, req StreamRequest) (*StreamResponse, error)
}

// ValidateStreamResponse applies spec §4.4's streaming-branch rejection
// rules: a non-2xx status, a textual content-type, or a non-identity
// content-encoding all mark the stream invalid rather than being read as
// container bytes.
func ValidateStreamResponse(resp *StreamResponse) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.New(apperr.KindBadStream, "non-2xx stream response")
	}
	contentType := strings.ToLower(resp.ContentType)
	if strings.HasPrefix(contentType, "text/") ||
		strings.Contains(contentType, "html") ||
		strings.Contains(contentType, "json") {
		return apperr.New(apperr.KindBadStream, "textual content-type on stream response")
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.ContentEncoding))
	if encoding != "" && encoding != "identity" {
		return apperr.New(apperr.KindBadStream, "non-identity content-encoding on stream response")
	}
	return nil
}
