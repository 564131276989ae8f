package recorder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reactioncut/internal/store"
)

// fakePlaybackSource returns one fixed, non-HLS URL forever.
type fakePlaybackSource struct {
	url string
}

func (f fakePlaybackSource) FetchPlaybackURLs(ctx context.Context, roomID string, qualityHint int) ([]PlaybackURL, error) {
	return []PlaybackURL{{URL: f.url}}, nil
}

// fakeStreamOpener serves one canned FLV byte sequence per Open call, then
// returns io.EOF once exhausted.
type fakeStreamOpener struct {
	mu      sync.Mutex
	payload []byte
	opened  int
}

func (f *fakeStreamOpener) Open(ctx context.Context, req StreamRequest) (*StreamResponse, error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &StreamResponse{
		StatusCode:  200,
		ContentType: "video/x-flv",
		Body:        io.NopCloser(bytes.NewReader(f.payload)),
	}, nil
}

func (f *fakeStreamOpener) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// buildFLVHeader assembles the 9-byte container header (signature,
// version 1, audio+video flags, header size 9) followed by the zero
// PreviousTagSize0 field.
func buildFLVHeader() []byte {
	var buf bytes.Buffer
	buf.Write([]byte("FLV"))
	buf.Write([]byte{1, 5, 0, 0, 0, 9})
	buf.Write([]byte{0, 0, 0, 0})
	return buf.Bytes()
}

func buildVideoTag(timestamp uint32, payload []byte) []byte {
	var buf bytes.Buffer
	dataSize := len(payload)
	buf.WriteByte(9) // video tag
	buf.WriteByte(byte(dataSize >> 16))
	buf.WriteByte(byte(dataSize >> 8))
	buf.WriteByte(byte(dataSize))
	buf.WriteByte(byte(timestamp >> 16))
	buf.WriteByte(byte(timestamp >> 8))
	buf.WriteByte(byte(timestamp))
	buf.WriteByte(byte(timestamp >> 24))
	buf.Write([]byte{0, 0, 0}) // stream id
	buf.Write(payload)
	total := 11 + dataSize
	buf.Write([]byte{0, 0, 0, byte(total)})
	return buf.Bytes()
}

func avcConfigPayload() []byte {
	return []byte{0x17, 0x00, 0, 0, 0}
}

func avcKeyframePayload() []byte {
	return []byte{0x17, 0x01, 0, 0, 0, 0xAA, 0xBB}
}

func testPaths(dir string) PathBuilder {
	return func(roomID string, segmentIndex int) (string, string) {
		base := filepath.Join(dir, fmt.Sprintf("%s-%d", roomID, segmentIndex))
		return base + ".flv", base + ".chat.jsonl"
	}
}

func TestRecorderOpensSegmentAndIngestsTags(t *testing.T) {
	var payload bytes.Buffer
	payload.Write(buildFLVHeader())
	payload.Write(buildVideoTag(0, avcConfigPayload()))
	payload.Write(buildVideoTag(40, avcKeyframePayload()))

	opener := &fakeStreamOpener{payload: payload.Bytes()}
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}

	dir := t.TempDir()
	rec := New(Dependencies{
		PlaybackSource: fakePlaybackSource{url: "https://example.com/live.flv"},
		StreamOpener:   opener,
		Store:          repo,
		Paths:          testPaths(dir),
	})

	handle := newHandle("room1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx, handle, RoomSettings{RoomID: "room1", StreamRetryMs: 5}) }()

	// Give the single canned payload time to be ingested before stopping.
	time.Sleep(150 * time.Millisecond)
	handle.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recorder to stop")
	}

	path, _ := testPaths(dir)("room1", 0)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read segment file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty segment file")
	}
	if !bytes.HasPrefix(data, []byte("FLV")) {
		t.Fatal("expected segment file to start with the container signature")
	}
}
