package uploadclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
)

func TestCappedExponential(t *testing.T) {
	cases := []struct {
		n    int
		base time.Duration
		max  time.Duration
		want time.Duration
	}{
		{1, 2 * time.Second, 30 * time.Second, 2 * time.Second},
		{2, 2 * time.Second, 30 * time.Second, 4 * time.Second},
		{5, 2 * time.Second, 30 * time.Second, 30 * time.Second}, // 2*16=32, capped
		{1, 60 * time.Second, 1800 * time.Second, 60 * time.Second},
		{6, 60 * time.Second, 1800 * time.Second, 1800 * time.Second}, // 60*32=1920, capped
	}
	for _, tc := range cases {
		if got := cappedExponential(tc.n, tc.base, tc.max); got != tc.want {
			t.Errorf("cappedExponential(%d, %v, %v) = %v, want %v", tc.n, tc.base, tc.max, got, tc.want)
		}
	}
}

func TestDeriveFilename(t *testing.T) {
	cases := []struct {
		key, fallback, want string
	}{
		{"bucket/path/clip.mp4", "ignored", "clip"},
		{"", "fallback-name", "fallback-name"},
		{"just-a-name.flv", "x", "just-a-name"},
	}
	for _, tc := range cases {
		if got := deriveFilename(tc.key, tc.fallback); got != tc.want {
			t.Errorf("deriveFilename(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
		}
	}
}

func TestPersistTrackerThresholds(t *testing.T) {
	tr := newPersistTracker(1000)
	if tr.shouldPersist(5, false) {
		t.Fatal("expected no persist for a tiny delta with no elapsed time")
	}
	if !tr.shouldPersist(30, false) {
		t.Fatal("expected persist once the 1%% delta threshold is crossed")
	}
	tr.advance(30)
	if tr.shouldPersist(31, false) {
		t.Fatal("expected no persist immediately after advancing the baseline")
	}
	if !tr.shouldPersist(31, true) {
		t.Fatal("expected persist on final completion regardless of deltas")
	}
}

func TestUposObjectURL(t *testing.T) {
	pre := preuploadResult{Endpoint: "upos-hz.example.com", UposURI: "upos://ugcfx/abc123.mp4"}
	got, err := uposObjectURL(pre)
	if err != nil {
		t.Fatalf("uposObjectURL: %v", err)
	}
	want := "https://upos-hz.example.com/ugcfx/abc123.mp4"
	if got != want {
		t.Fatalf("uposObjectURL = %q, want %q", got, want)
	}
}

// schemeRewriteDoer forces every outbound https request onto a local
// httptest.Server, since the state machine always builds "https://"
// object URLs but httptest only serves plain HTTP.
type schemeRewriteDoer struct {
	target *url.URL
}

func (d schemeRewriteDoer) Do(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = d.target.Scheme
	clone.URL.Host = d.target.Host
	clone.Host = ""
	return http.DefaultClient.Do(clone)
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions []models.UploadSession
	statuses []models.UploadStatus
}

func (f *fakeSessionStore) Persist(ctx context.Context, session models.UploadSession, status models.UploadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeSessionStore) last() (models.UploadSession, models.UploadStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions)
	if n == 0 {
		return models.UploadSession{}, ""
	}
	return f.sessions[n-1], f.statuses[n-1]
}

// fakeUploadServer fakes the pre-upload + object-storage endpoints the
// Chunked Upload Client talks to: a GET pre-upload handler and a
// POST/PUT object handler sharing one upos_uri/path.
func fakeUploadServer(t *testing.T, rateLimitChunks int32) (*httptest.Server, *int32) {
	t.Helper()
	var chunkAttempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/preupload", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"OK":         1,
			"auth":       "upos-auth-token",
			"biz_id":     42,
			"chunk_size": 16,
			"endpoint":   "", // filled below with the server's own host
			"upos_uri":   "upos://ugcfx/clip.mp4",
		}
		resp["endpoint"] = r.Host
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/ugcfx/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if r.URL.Query().Get("uploads") == "1" {
				_ = json.NewEncoder(w).Encode(map[string]any{"upload_id": "upload-123"})
				return
			}
			// finalize
			_ = json.NewEncoder(w).Encode(map[string]any{
				"OK": 1,
				"data": map[string]any{
					"cid": 999,
					"key": "/ugcfx/clip.mp4",
				},
			})
		case http.MethodPut:
			n := atomic.AddInt32(&chunkAttempts, 1)
			if int32(rateLimitChunks) > 0 && n <= rateLimitChunks {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusNotAcceptable)
				return
			}
			fmt.Fprint(w, "MULTIPART_PUT_SUCCESS")
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return httptest.NewServer(mux), &chunkAttempts
}

func TestClientUploadHappyPath(t *testing.T) {
	server, _ := fakeUploadServer(t, 0)
	defer server.Close()

	dir := t.TempDir()
	path := dir + "/clip.bin"
	content := strings.Repeat("x", 40) // 3 chunks of 16 bytes (16,16,8)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	target, _ := url.Parse(server.URL)
	store := &fakeSessionStore{}
	client := New(WithHTTPClient(schemeRewriteDoer{target: target}))

	result, err := client.Upload(context.Background(), Request{
		FilePath:     path,
		FileSize:     int64(len(content)),
		Name:         "clip",
		Profile:      "ugcfx",
		PreUploadURL: server.URL + "/preupload",
		Store:        store,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.CID != 999 {
		t.Fatalf("expected cid 999, got %d", result.CID)
	}
	if result.Filename != "clip" {
		t.Fatalf("expected filename clip, got %q", result.Filename)
	}

	session, status := store.last()
	if status != models.UploadStatusSuccess {
		t.Fatalf("expected final status SUCCESS, got %s", status)
	}
	if session.UploadedBytes != int64(len(content)) {
		t.Fatalf("expected UploadedBytes == file size, got %d", session.UploadedBytes)
	}
}

func TestClientUploadBacksOffOnChunkRateLimit(t *testing.T) {
	server, attempts := fakeUploadServer(t, 2)
	defer server.Close()

	dir := t.TempDir()
	path := dir + "/clip.bin"
	content := strings.Repeat("y", 16)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	target, _ := url.Parse(server.URL)
	store := &fakeSessionStore{}
	client := New(WithHTTPClient(schemeRewriteDoer{target: target}))

	// The 406 backoff keeps its real first wait here, so this test bounds
	// the run with a short deadline and asserts that it expires during the
	// backoff after at least one PUT attempt, not an eventual success.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Upload(ctx, Request{
		FilePath:     path,
		FileSize:     int64(len(content)),
		Name:         "clip",
		Profile:      "ugcfx",
		PreUploadURL: server.URL + "/preupload",
		Store:        store,
	})
	// The real 406 backoff starts at 60s, far past this test's budget, so
	// we expect a context-deadline failure rather than success; the
	// assertion that matters is that the client actually attempted the
	// chunk PUT and is the one driving the wait, not the server.
	if err == nil {
		t.Fatal("expected the short test context to expire during the 406 backoff")
	}
	if atomic.LoadInt32(attempts) < 1 {
		t.Fatal("expected at least one chunk PUT attempt")
	}
}

func TestClientUploadResumesFromCheckpoint(t *testing.T) {
	server, attempts := fakeUploadServer(t, 0)
	defer server.Close()

	dir := t.TempDir()
	path := dir + "/clip.bin"
	content := strings.Repeat("z", 32) // 2 chunks of 16 bytes
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	target, _ := url.Parse(server.URL)
	store := &fakeSessionStore{}
	client := New(WithHTTPClient(schemeRewriteDoer{target: target}))

	checkpoint := models.UploadSession{
		SessionID:     "upload-123",
		BizID:         42,
		Endpoint:      target.Host,
		SessionAuth:   "upos-auth-token",
		URI:           "upos://ugcfx/clip.mp4",
		ChunkSize:     16,
		TotalBytes:    int64(len(content)),
		LastPartIndex: 1, // first chunk already acknowledged
		UploadedBytes: 16,
	}

	result, err := client.Upload(context.Background(), Request{
		FilePath:     path,
		FileSize:     int64(len(content)),
		Name:         "clip",
		Profile:      "ugcfx",
		PreUploadURL: server.URL + "/preupload",
		Store:        store,
		Checkpoint:   checkpoint,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.CID != 999 {
		t.Fatalf("expected cid 999, got %d", result.CID)
	}
	if got := atomic.LoadInt32(attempts); got != 1 {
		t.Fatalf("expected exactly one chunk PUT (the unacknowledged second chunk), got %d", got)
	}
}

func TestRefreshCredentialsRequiresCollaborators(t *testing.T) {
	c := New()
	err := c.refreshCredentials(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected an error when no refresher/credentials are configured")
	}
}

type stubCredentialProvider struct{}

func (stubCredentialProvider) Load(ctx context.Context) (mediaclient.AuthInfo, error) {
	return mediaclient.AuthInfo{}, nil
}
func (stubCredentialProvider) Save(ctx context.Context, auth mediaclient.AuthInfo) error {
	return nil
}
