package uploadclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"reactioncut/internal/apperr"
	"reactioncut/internal/models"
)

// Client drives the Chunked Upload Client state machine (spec §4.5) end
// to end for one file at a time.
type Client struct {
	transport *transport
	logger    *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTPDoer used for every call; defaults to
// http.DefaultClient.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.transport.httpClient = doer
		}
	}
}

// WithLogger overrides the logger used for retry/refresh diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{
		transport: &transport{httpClient: http.DefaultClient},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Upload runs req through the state machine, wrapped in the retry
// envelope spec §4.5 mandates: up to UploadSegmentRetryLimit attempts with
// min(2*2^(n-1), 30)s backoff between them, except that an authentication
// error triggers a credential refresh and retries without counting
// against the limit.
func (c *Client) Upload(ctx context.Context, req Request) (Result, error) {
	session := req.Checkpoint
	if !session.Resumable(req.FileSize) {
		session = models.Cleared()
	}

	var result Result
	envelope := retryEnvelopeBackOff()

	op := func() error {
		a := &attempt{transport: c.transport, req: req, session: &session}
		res, err := a.run(ctx)
		if err == nil {
			result = res
			return nil
		}

		if apperr.IsAuthErrorErr(err) {
			if refreshErr := c.refreshCredentials(ctx, req); refreshErr != nil {
				c.logger.Warn("uploadclient: credential refresh failed", "error", refreshErr)
				return backoff.Permanent(err)
			}
			envelope.Reset()
			return err
		}

		c.logger.Warn("uploadclient: upload attempt failed", "path", req.FilePath, "error", err)
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(envelope, ctx)); err != nil {
		return Result{}, fmt.Errorf("uploadclient: upload %s: %w", req.FilePath, unwrapPermanent(err))
	}
	return result, nil
}

// refreshCredentials implements "trigger credential refresh and retry
// without counting against the limit" (spec §4.5 retry envelope).
func (c *Client) refreshCredentials(ctx context.Context, req Request) error {
	if req.Refresher == nil || req.Credentials == nil {
		return errors.New("uploadclient: no credential refresher configured")
	}
	_, err := req.Refresher.RefreshCookie(ctx, req.Credentials)
	return err
}
