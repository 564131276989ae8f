// Package mediaclient implements the Media JSON API client collaborator
// (spec §6): a small HTTP adapter the Recorder Loop, Workflow Engine, and
// Remote Submission Client all share for authenticated GET/POST calls
// against the platform's JSON API, plus session-cookie refresh.
package mediaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout  = 15 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
)

// AuthInfo carries the session credentials attached to outbound requests.
type AuthInfo struct {
	Cookie string
	CSRF   string
	UserID int64
}

// CredentialProvider is the narrow slice of internal/credentials.Store the
// client needs: loading the current session and persisting a refreshed
// one. Kept local so this leaf package does not import the store.
type CredentialProvider interface {
	Load(ctx context.Context) (AuthInfo, error)
	Save(ctx context.Context, auth AuthInfo) error
}

// Client is the Media JSON API adapter: get_json/post_json plus
// refresh_cookie, modeled on the teacher's httpChannelAdapter
// (internal/ingest/adapters.go) retry/backoff/logging shape.
type Client struct {
	httpClient    *http.Client
	logger        *slog.Logger
	maxAttempts   int
	retryInterval time.Duration
	refreshURL    string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger overrides the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry overrides the attempt count and backoff interval.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if interval >= 0 {
			c.retryInterval = interval
		}
	}
}

// WithRefreshURL sets the endpoint refresh_cookie posts to in order to
// renew an expiring session cookie.
func WithRefreshURL(refreshURL string) Option {
	return func(c *Client) {
		c.refreshURL = refreshURL
	}
}

// New constructs a Media JSON API Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:        slog.Default(),
		maxAttempts:   defaultMaxAttempts,
		retryInterval: defaultRetryBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// GetJSON performs get_json(url, params, auth?, prefer_mobile_ua?): an
// authenticated GET decoded into a map of the JSON response body.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, auth *AuthInfo, preferMobileUA bool) (map[string]any, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("mediaclient: parse url: %w", err)
	}
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()

	var result map[string]any
	err = c.doWithRetry(ctx, http.MethodGet, u.String(), nil, auth, preferMobileUA, &result)
	return result, err
}

// PostJSON performs post_json(url, params, body, auth?): an authenticated
// POST of a JSON body, with params applied to the URL's query string,
// decoded into a map of the JSON response body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, params url.Values, body any, auth *AuthInfo) (map[string]any, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("mediaclient: parse url: %w", err)
	}
	if len(params) > 0 {
		query := u.Query()
		for key, values := range params {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		u.RawQuery = query.Encode()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mediaclient: marshal request body: %w", err)
	}

	var result map[string]any
	err = c.doWithRetry(ctx, http.MethodPost, u.String(), payload, auth, false, &result)
	return result, err
}

// RefreshCookie implements refresh_cookie(client, store, db, log): it
// posts the current session to the configured refresh endpoint, and on
// success persists whatever renewed cookie/csrf the endpoint returns
// through provider.
func (c *Client) RefreshCookie(ctx context.Context, provider CredentialProvider) (AuthInfo, error) {
	if c.refreshURL == "" {
		return AuthInfo{}, fmt.Errorf("mediaclient: no refresh url configured")
	}
	current, err := provider.Load(ctx)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("mediaclient: load current credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, nil)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("mediaclient: build refresh request: %w", err)
	}
	applyAuth(req, current, false)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("mediaclient: refresh cookie: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("mediaclient: read refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AuthInfo{}, fmt.Errorf("mediaclient: refresh cookie failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	refreshed := current
	if cookie := mergeSetCookie(resp.Header.Values("Set-Cookie")); cookie != "" {
		refreshed.Cookie = cookie
	}
	var decoded struct {
		Data struct {
			CSRF string `json:"csrf"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Data.CSRF != "" {
		refreshed.CSRF = decoded.Data.CSRF
	}

	if err := provider.Save(ctx, refreshed); err != nil {
		return AuthInfo{}, fmt.Errorf("mediaclient: persist refreshed credentials: %w", err)
	}
	return refreshed, nil
}

func mergeSetCookie(values []string) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if semi := strings.IndexByte(v, ';'); semi >= 0 {
			v = v[:semi]
		}
		parts = append(parts, strings.TrimSpace(v))
	}
	return strings.Join(parts, "; ")
}

func applyAuth(req *http.Request, auth AuthInfo, preferMobileUA bool) {
	if preferMobileUA {
		req.Header.Set("User-Agent", mobileUserAgent)
	} else {
		req.Header.Set("User-Agent", desktopUserAgent)
	}
	if auth.Cookie != "" {
		req.Header.Set("Cookie", auth.Cookie)
	}
}

func (c *Client) doWithRetry(ctx context.Context, method, rawURL string, payload []byte, auth *AuthInfo, preferMobileUA bool, dest *map[string]any) error {
	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return fmt.Errorf("mediaclient: build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth != nil {
			applyAuth(req, *auth, preferMobileUA)
		} else {
			applyAuth(req, AuthInfo{}, preferMobileUA)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("mediaclient: %s %s: %w", method, rawURL, err)
		} else {
			lastErr = readResponse(resp, dest)
		}

		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		c.logger.Warn("media json api request failed, retrying",
			"method", method, "url", rawURL, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
	return lastErr
}

type retryableError struct{ error }

func isRetryable(err error) bool {
	_, ok := err.(retryableError)
	return ok
}

func readResponse(resp *http.Response, dest *map[string]any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retryableError{fmt.Errorf("mediaclient: read response: %w", err)}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retryableError{fmt.Errorf("mediaclient: %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mediaclient: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("mediaclient: decode response: %w", err)
	}
	return nil
}
