package remoteapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reactioncut/internal/mediaclient"
)

type fakeCredentials struct {
	auth mediaclient.AuthInfo
}

func (f *fakeCredentials) Load(context.Context) (mediaclient.AuthInfo, error) {
	return f.auth, nil
}

func (f *fakeCredentials) Save(_ context.Context, auth mediaclient.AuthInfo) error {
	f.auth = auth
	return nil
}

type fakeRefresher struct {
	refreshed mediaclient.AuthInfo
	calls     int
}

func (f *fakeRefresher) RefreshCookie(context.Context, mediaclient.CredentialProvider) (mediaclient.AuthInfo, error) {
	f.calls++
	return f.refreshed, nil
}

func newTestClient(t *testing.T, creds *fakeCredentials) (*Client, *fakeRefresher) {
	t.Helper()
	refresher := &fakeRefresher{refreshed: mediaclient.AuthInfo{Cookie: "fresh", CSRF: "fresh-csrf"}}
	return &Client{
		Media:       mediaclient.New(),
		Credentials: creds,
		Refresher:   refresher,
	}, refresher
}

func TestCreateParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("csrf") != "csrf-1" {
			t.Errorf("expected csrf forwarded, got %q", r.URL.Query().Get("csrf"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"bvid":"BV1xx","aid":12345}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{auth: mediaclient.AuthInfo{Cookie: "c", CSRF: "csrf-1"}}
	client, _ := newTestClient(t, creds)
	client.Endpoints.Create = srv.URL

	result, err := client.Create(context.Background(), SubmissionInfo{Title: "t"}, []VideoPart{{Filename: "a.mp4", CID: 1, Title: "P1"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.BVID != "BV1xx" || result.AID != 12345 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateRaisesCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":-400,"message":"参数错误"}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{auth: mediaclient.AuthInfo{Cookie: "c", CSRF: "csrf-1"}}
	client, _ := newTestClient(t, creds)
	client.Endpoints.Create = srv.URL

	_, err := client.Create(context.Background(), SubmissionInfo{}, nil)
	if err == nil || !strings.Contains(err.Error(), "code: -400") {
		t.Fatalf("expected code error, got %v", err)
	}
}

func TestCreateRefreshesOnceOnAuthError(t *testing.T) {
	var seenCSRF []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCSRF = append(seenCSRF, r.URL.Query().Get("csrf"))
		w.Header().Set("Content-Type", "application/json")
		if len(seenCSRF) == 1 {
			_, _ = w.Write([]byte(`{"code":-101,"message":"账号未登录"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"bvid":"BV2yy","aid":999}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{auth: mediaclient.AuthInfo{Cookie: "stale", CSRF: "stale-csrf"}}
	client, refresher := newTestClient(t, creds)
	client.Endpoints.Create = srv.URL

	result, err := client.Create(context.Background(), SubmissionInfo{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refresher.calls)
	}
	if result.BVID != "BV2yy" {
		t.Fatalf("unexpected result after refresh: %+v", result)
	}
	if seenCSRF[1] != "fresh-csrf" {
		t.Fatalf("expected retry to use refreshed csrf, got %q", seenCSRF[1])
	}
}

func TestSubmitBatchesBeyondMaxParts(t *testing.T) {
	var createCalls, editCalls int
	var lastEditVideoCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "add") {
			createCalls++
			_, _ = w.Write([]byte(`{"code":0,"bvid":"BV1ab","aid":7}`))
			return
		}
		editCalls++
		body, _ := io.ReadAll(r.Body)
		lastEditVideoCount = strings.Count(string(body), `"cid"`)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{auth: mediaclient.AuthInfo{Cookie: "c", CSRF: "csrf"}}
	client, _ := newTestClient(t, creds)
	client.Endpoints.Create = srv.URL + "/x/vu/web/add/v3"
	client.Endpoints.Edit = srv.URL + "/x/vu/web/edit"

	parts := make([]VideoPart, 150)
	for i := range parts {
		parts[i] = VideoPart{Filename: "f", CID: int64(i + 1), Title: "P"}
	}

	result, err := client.Submit(context.Background(), SubmissionInfo{Title: "t"}, parts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.BVID != "BV1ab" || result.AID != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if createCalls != 1 {
		t.Fatalf("expected exactly 1 create call, got %d", createCalls)
	}
	if editCalls != 1 {
		t.Fatalf("expected exactly 1 edit batch for 150 parts, got %d", editCalls)
	}
	if lastEditVideoCount != 150 {
		t.Fatalf("expected final edit batch to resend all 150 parts, got %d", lastEditVideoCount)
	}
}

func TestSubmitUpdateBatchesFromScratch(t *testing.T) {
	var editBatchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		editBatchSizes = append(editBatchSizes, strings.Count(string(body), `"cid"`))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{auth: mediaclient.AuthInfo{Cookie: "c", CSRF: "csrf"}}
	client, _ := newTestClient(t, creds)
	client.Endpoints.Edit = srv.URL

	parts := make([]VideoPart, 210)
	for i := range parts {
		parts[i] = VideoPart{Filename: "f", CID: int64(i + 1), Title: "P"}
	}

	if err := client.SubmitUpdate(context.Background(), SubmissionInfo{}, parts, 42); err != nil {
		t.Fatalf("submit update: %v", err)
	}
	if len(editBatchSizes) != 3 {
		t.Fatalf("expected 3 edit batches (100, 200, 210), got %v", editBatchSizes)
	}
	if editBatchSizes[0] != 100 || editBatchSizes[1] != 200 || editBatchSizes[2] != 210 {
		t.Fatalf("unexpected batch sizes: %v", editBatchSizes)
	}
}

func TestFetchAIDByBVIDEmptyIsNoop(t *testing.T) {
	creds := &fakeCredentials{auth: mediaclient.AuthInfo{}}
	client, _ := newTestClient(t, creds)
	aid, err := client.FetchAIDByBVID(context.Background(), "   ")
	if err != nil {
		t.Fatalf("fetch aid: %v", err)
	}
	if aid != 0 {
		t.Fatalf("expected 0 for empty bvid, got %d", aid)
	}
}

func TestFetchAuditPagePaginatesUntilExhausted(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pn") == "1" {
			_, _ = w.Write([]byte(`{"arc_audits":[{"Archive":{"bvid":"BV1","state":0}}],"page":{"count":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"arc_audits":[{"Archive":{"bvid":"BV2","state":-30},"problem_detail":[{"reject_reason":"封面不合规"}]}],"page":{"count":2}}`))
	}))
	defer srv.Close()

	creds := &fakeCredentials{auth: mediaclient.AuthInfo{}}
	client, _ := newTestClient(t, creds)
	client.Endpoints.AuditPage = srv.URL

	entries, err := client.FetchAuditPage(context.Background())
	if err != nil {
		t.Fatalf("fetch audit page: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].RejectReason != "封面不合规" {
		t.Fatalf("expected reject reason surfaced, got %q", entries[1].RejectReason)
	}
	if requests != 2 {
		t.Fatalf("expected 2 page requests, got %d", requests)
	}
}
