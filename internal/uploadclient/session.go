package uploadclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reactioncut/internal/apperr"
	"reactioncut/internal/models"
)

// attempt drives one full pass of the state machine
// (NoSession/PreUploaded/MetaPosted/Uploading/Finalized) for req against a
// session checkpoint owned by the caller. The caller (client.go's retry
// envelope) retains session across attempts so a failed attempt's partial
// progress (pre-upload/meta-post results, completed chunk count) is not
// lost on retry — only the chunks not yet acknowledged are re-sent.
type attempt struct {
	transport *transport
	req       Request
	session   *models.UploadSession
}

func (a *attempt) run(ctx context.Context) (Result, error) {
	pre, err := a.ensurePreUploaded(ctx, a.session)
	if err != nil {
		return Result{}, err
	}

	objectURL, err := uposObjectURL(pre)
	if err != nil {
		return Result{}, err
	}

	uploadID, err := a.ensureMetaPosted(ctx, a.session, objectURL, pre)
	if err != nil {
		return Result{}, err
	}

	if err := a.runChunkLoop(ctx, a.session, objectURL, pre, uploadID); err != nil {
		return Result{}, err
	}

	totalParts := int(math.Ceil(float64(a.req.FileSize) / float64(a.session.ChunkSize)))
	result, err := a.transport.finalize(ctx, objectURL, a.req, pre, uploadID, totalParts)
	if err != nil {
		return Result{}, err
	}
	result.Session = *a.session

	if a.req.Store != nil {
		if err := a.req.Store.Persist(ctx, *a.session, models.UploadStatusSuccess); err != nil {
			return Result{}, fmt.Errorf("uploadclient: persist final checkpoint: %w", err)
		}
	}
	return result, nil
}

// ensurePreUploaded fills in session's endpoint/auth/uri/chunk-size fields
// from a checkpoint, or performs the pre-upload call (with its own 406
// backoff loop) and persists the result as the new checkpoint.
func (a *attempt) ensurePreUploaded(ctx context.Context, session *models.UploadSession) (preuploadResult, error) {
	if session.SessionAuth != "" && session.Endpoint != "" && session.URI != "" && session.ChunkSize > 0 && session.BizID > 0 {
		return preuploadResult{
			Auth:      session.SessionAuth,
			BizID:     session.BizID,
			ChunkSize: session.ChunkSize,
			Endpoint:  session.Endpoint,
			UposURI:   session.URI,
		}, nil
	}

	var pre preuploadResult
	op := func() error {
		var err error
		pre, err = a.transport.preUpload(ctx, a.req)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindRateLimited {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(rateLimitBackOff(), ctx)); err != nil {
		return preuploadResult{}, unwrapPermanent(err)
	}

	session.Endpoint = pre.Endpoint
	session.SessionAuth = pre.Auth
	session.URI = pre.UposURI
	session.ChunkSize = pre.ChunkSize
	session.BizID = pre.BizID
	session.TotalBytes = a.req.FileSize
	return pre, nil
}

// ensureMetaPosted resumes session.SessionID when already set, or performs
// the meta-post call and stores the resulting upload_id as SessionID (the
// session's own opaque identifier once meta-posted).
func (a *attempt) ensureMetaPosted(ctx context.Context, session *models.UploadSession, objectURL string, pre preuploadResult) (string, error) {
	if session.SessionID != "" {
		return session.SessionID, nil
	}

	var uploadID string
	op := func() error {
		var err error
		uploadID, err = a.transport.metaPost(ctx, objectURL, a.req, pre)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindRateLimited {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(rateLimitBackOff(), ctx)); err != nil {
		return "", unwrapPermanent(err)
	}

	session.SessionID = uploadID
	if a.req.Store != nil {
		if err := a.req.Store.Persist(ctx, *session, models.UploadStatusUploading); err != nil {
			return "", fmt.Errorf("uploadclient: persist checkpoint after meta-post: %w", err)
		}
	}
	return uploadID, nil
}

// runChunkLoop uploads every part from session.LastPartIndex+1 through the
// last part, persisting progress at the rate spec §4.5 bounds and handling
// per-chunk 406s with the RATE_LIMITED/UPLOADING status dance.
func (a *attempt) runChunkLoop(ctx context.Context, session *models.UploadSession, objectURL string, pre preuploadResult, uploadID string) error {
	file, err := os.Open(a.req.FilePath)
	if err != nil {
		return fmt.Errorf("uploadclient: open %s: %w", a.req.FilePath, err)
	}
	defer file.Close()

	totalParts := int(math.Ceil(float64(a.req.FileSize) / float64(session.ChunkSize)))
	buf := make([]byte, session.ChunkSize)

	tracker := newPersistTracker(a.req.FileSize)
	tracker.advance(session.UploadedBytes)

	for partIndex := session.LastPartIndex; partIndex < totalParts; partIndex++ {
		start := int64(partIndex) * session.ChunkSize
		end := start + session.ChunkSize
		if end > a.req.FileSize {
			end = a.req.FileSize
		}
		size := end - start

		if _, err := file.Seek(start, 0); err != nil {
			return fmt.Errorf("uploadclient: seek part %d: %w", partIndex, err)
		}
		data := buf[:size]
		if _, err := readFull(file, data); err != nil {
			return fmt.Errorf("uploadclient: read part %d: %w", partIndex, err)
		}

		if err := a.putChunkWithRateLimit(ctx, session, objectURL, pre, uploadID, partIndex, totalParts, data, start, end); err != nil {
			return err
		}

		session.LastPartIndex = partIndex + 1
		session.UploadedBytes = end
		session.ProgressPercent = float64(end) / float64(a.req.FileSize) * 100

		final := partIndex == totalParts-1
		if a.req.Store != nil && tracker.shouldPersist(end, final) {
			if err := a.req.Store.Persist(ctx, *session, models.UploadStatusUploading); err != nil {
				return fmt.Errorf("uploadclient: persist chunk progress: %w", err)
			}
			tracker.advance(end)
		}
	}
	return nil
}

// putChunkWithRateLimit wraps one chunk PUT with the spec-mandated
// RATE_LIMITED status transition around the 406 backoff sleep.
func (a *attempt) putChunkWithRateLimit(ctx context.Context, session *models.UploadSession, objectURL string, pre preuploadResult, uploadID string, partIndex, totalParts int, data []byte, start, end int64) error {
	bo := backoff.WithContext(rateLimitBackOff(), ctx)
	for {
		err := a.transport.putChunk(ctx, objectURL, pre.Auth, uploadID, partIndex, totalParts, data, start, end, a.req.FileSize)
		if err == nil {
			return nil
		}
		if apperr.KindOf(err) != apperr.KindRateLimited {
			return err
		}

		if a.req.Store != nil {
			if perr := a.req.Store.Persist(ctx, *session, models.UploadStatusRateLimited); perr != nil {
				return fmt.Errorf("uploadclient: persist rate-limited status: %w", perr)
			}
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if a.req.Store != nil {
			if perr := a.req.Store.Persist(ctx, *session, models.UploadStatusUploading); perr != nil {
				return fmt.Errorf("uploadclient: restore uploading status: %w", perr)
			}
		}
	}
}

func readFull(r *os.File, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if read == len(buf) {
				return read, nil
			}
			return read, err
		}
	}
	return read, nil
}

// unwrapPermanent strips backoff.Retry's *backoff.PermanentError wrapper
// so callers see the original apperr-tagged error.
func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
