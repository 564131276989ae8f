package recorder

import (
	"testing"

	"reactioncut/internal/apperr"
)

func TestPlaybackURLIsHLS(t *testing.T) {
	if !(PlaybackURL{URL: "https://cdn.example.com/live/index.m3u8?token=x"}).IsHLS() {
		t.Fatal("expected .m3u8 path to be classified as HLS")
	}
	if (PlaybackURL{URL: "https://cdn.example.com/live/stream.flv"}).IsHLS() {
		t.Fatal("expected .flv path to not be classified as HLS")
	}
}

func TestValidateStreamResponse(t *testing.T) {
	cases := []struct {
		name string
		resp StreamResponse
		ok   bool
	}{
		{"valid", StreamResponse{StatusCode: 200, ContentType: "video/x-flv", ContentEncoding: ""}, true},
		{"valid identity", StreamResponse{StatusCode: 200, ContentType: "video/x-flv", ContentEncoding: "identity"}, true},
		{"non-2xx", StreamResponse{StatusCode: 404, ContentType: "video/x-flv"}, false},
		{"textual", StreamResponse{StatusCode: 200, ContentType: "text/html"}, false},
		{"json", StreamResponse{StatusCode: 200, ContentType: "application/json"}, false},
		{"gzip", StreamResponse{StatusCode: 200, ContentType: "video/x-flv", ContentEncoding: "gzip"}, false},
	}
	for _, tc := range cases {
		err := ValidateStreamResponse(&tc.resp)
		if tc.ok && err != nil {
			t.Errorf("%s: expected valid, got %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("%s: expected invalid stream error", tc.name)
				continue
			}
			if apperr.KindOf(err) != apperr.KindBadStream {
				t.Errorf("%s: expected KindBadStream, got %v", tc.name, apperr.KindOf(err))
			}
		}
	}
}
