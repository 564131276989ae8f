package mediaclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetJSONSendsCookieAndParams(t *testing.T) {
	var gotCookie, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotQuery = r.URL.Query().Get("room_id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c := New()
	auth := &AuthInfo{Cookie: "SESSDATA=abc"}
	result, err := c.GetJSON(context.Background(), srv.URL, url.Values{"room_id": {"123"}}, auth, false)
	if err != nil {
		t.Fatalf("get json: %v", err)
	}
	if gotCookie != "SESSDATA=abc" {
		t.Fatalf("expected cookie forwarded, got %q", gotCookie)
	}
	if gotQuery != "123" {
		t.Fatalf("expected room_id=123 forwarded, got %q", gotQuery)
	}
	if result["code"].(float64) != 0 {
		t.Fatalf("unexpected decoded result: %+v", result)
	}
}

func TestDoWithRetryRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	c := New(WithRetry(3, time.Millisecond))
	result, err := c.GetJSON(context.Background(), srv.URL, nil, nil, false)
	if err != nil {
		t.Fatalf("get json: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if result["code"].(float64) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDoWithRetryDoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(WithRetry(3, time.Millisecond))
	_, err := c.GetJSON(context.Background(), srv.URL, nil, nil, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable status, got %d", attempts)
	}
}

type fakeCredentialProvider struct {
	loaded AuthInfo
	saved  AuthInfo
}

func (p *fakeCredentialProvider) Load(ctx context.Context) (AuthInfo, error) {
	return p.loaded, nil
}

func (p *fakeCredentialProvider) Save(ctx context.Context, auth AuthInfo) error {
	p.saved = auth
	return nil
}

func TestRefreshCookiePersistsRenewedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "SESSDATA=new-session; Path=/; HttpOnly")
		w.Header().Set("Content-Type", "application/json")
		resp, _ := json.Marshal(map[string]any{"data": map[string]any{"csrf": "new-csrf"}})
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	c := New(WithRefreshURL(srv.URL))
	provider := &fakeCredentialProvider{loaded: AuthInfo{Cookie: "SESSDATA=old"}}

	refreshed, err := c.RefreshCookie(context.Background(), provider)
	if err != nil {
		t.Fatalf("refresh cookie: %v", err)
	}
	if refreshed.Cookie != "SESSDATA=new-session" {
		t.Fatalf("unexpected refreshed cookie: %q", refreshed.Cookie)
	}
	if refreshed.CSRF != "new-csrf" {
		t.Fatalf("unexpected refreshed csrf: %q", refreshed.CSRF)
	}
	if provider.saved.Cookie != "SESSDATA=new-session" {
		t.Fatalf("expected provider.Save called with refreshed cookie, got %+v", provider.saved)
	}
}
