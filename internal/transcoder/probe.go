package transcoder

import (
	"context"
	"fmt"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Prober answers the duration question the Workflow Engine's
// source-readiness probe and clip-copy decision need, backed by
// gopkg.in/vansante/go-ffprobe.v2 the way the pack's
// livepeer-catalyst-api/video.Probe wraps the same library for its own
// input inspection.
type Prober struct{}

// NewProber constructs a Prober.
func NewProber() Prober { return Prober{} }

// Duration returns a media file's duration in seconds.
func (Prober) Duration(ctx context.Context, path string) (float64, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("transcoder: probe %s: %w", path, err)
	}
	if data.Format == nil {
		return 0, fmt.Errorf("transcoder: probe %s: no format data", path)
	}
	return data.Format.DurationSeconds, nil
}

// VideoCodec returns the codec name of path's first video stream, used to
// decide whether a clip/trim can be satisfied by a copy-only cut (same
// codec as the merge target) or needs a re-encode.
func (Prober) VideoCodec(ctx context.Context, path string) (string, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return "", fmt.Errorf("transcoder: probe %s: %w", path, err)
	}
	stream := data.FirstVideoStream()
	if stream == nil {
		return "", fmt.Errorf("transcoder: %s: no video stream", path)
	}
	return stream.CodecName, nil
}
