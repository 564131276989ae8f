package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reactioncut/internal/flvstream"
	"reactioncut/internal/models"
	"reactioncut/internal/segmentwriter"
	"reactioncut/internal/transcoder"
)

// errDegraded signals that the current connection must be dropped and the
// room reconnected on a fresh playback URL, without finalizing the
// currently open segment (spec §4.4 degradation/gap handling: only an
// explicit, time, size, title, or missing-window trigger ever rotates the
// segment itself).
var errDegraded = errors.New("recorder: stream degraded, reconnecting")

// Store is the slice of the Persistent Store the Recorder Loop needs:
// creating a row for each new segment, finishing it (via TaskUpdater,
// shared with internal/segmentwriter), and patching in the post-remux
// output path.
type Store interface {
	TaskUpdater
	CreateLiveRecordTask(ctx context.Context, task models.LiveRecordTask) (models.LiveRecordTask, error)
	UpdateLiveRecordFilePath(ctx context.Context, taskID, filePath string, size int64) error
}

// PathBuilder returns the native segment file path and chat sidecar path
// for one room's Nth segment. The sidecar path is ignored when chat
// recording is disabled.
type PathBuilder func(roomID string, segmentIndex int) (path, sidecarPath string)

// Dependencies wires the Recorder Loop to its collaborators. Every field
// is a narrow interface so tests substitute fakes without touching real
// network or file IO.
type Dependencies struct {
	PlaybackSource PlaybackSource
	StreamOpener   StreamOpener
	Store          Store
	Transcoder     *transcoder.Runner
	HLS            *HLSSubRecorder
	Chat           ChatConnector
	Paths          PathBuilder
	Now            func() time.Time
	Logger         *slog.Logger
}

// Recorder drives one room's state machine end to end: playback URL
// fetch, container branching, ingest, split policy, degradation
// detection, gap handling, post-segment remux, and the chat sidecar.
// Grounded directly on original_source/src-tauri/src/live_recorder.rs's
// run_record_loop.
type Recorder struct {
	deps Dependencies
}

// New constructs a Recorder, filling in defaults for any unset optional
// dependency.
func New(deps Dependencies) *Recorder {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Recorder{deps: deps}
}

func (r *Recorder) now() time.Time { return r.deps.Now() }

// segmentState is the bookkeeping kept for the currently open segment.
type segmentState struct {
	taskID string
	path   string
	writer *segmentwriter.Writer
	chat   *chatRunner
}

// Run drives settings.RoomID's recorder loop until handle is stopped or
// ctx is canceled, reconnecting across transient failures and rotating
// segments per the split policy.
func (r *Recorder) Run(ctx context.Context, handle *Handle, settings RoomSettings) error {
	logger := r.deps.Logger.With("room", settings.RoomID)
	sess := newSession("", r.now())
	cache := flvstream.NewHeaderCache()
	var cur *segmentState
	segmentIndex := 0

	defer func() {
		if cur != nil {
			r.finalizeSegment(context.Background(), cur, models.LiveRecordStatusStopped, nil)
			r.enqueueRemux(cur)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-handle.Stopped():
			return nil
		default:
		}

		qualityHint := 0
		if !sess.forceNoQnActive(r.now()) {
			qualityHint = ParseQualityHint(settings.QualityHint)
		}

		urls, err := r.deps.PlaybackSource.FetchPlaybackURLs(ctx, settings.RoomID, qualityHint)
		if err != nil || len(urls) == 0 {
			logger.Warn("playback url fetch failed", "error", err)
			if !r.sleepOrStop(ctx, handle, settings.StreamRetryDelay()) {
				return nil
			}
			continue
		}
		chosen := urls[0]

		if chosen.IsHLS() {
			return r.runHLS(ctx, handle, settings, chosen, segmentIndex)
		}

		done, runErr := r.runStreaming(ctx, handle, settings, sess, cache, &cur, &segmentIndex, chosen)
		if done {
			return runErr
		}
	}
}

// runStreaming opens one direct (non-HLS) connection and reads it until
// the connection needs to be dropped (degradation, gap, URL expiry) or the
// room itself is done (stop/ctx). done reports the latter.
func (r *Recorder) runStreaming(ctx context.Context, handle *Handle, settings RoomSettings, sess *session, cache *flvstream.HeaderCache, cur **segmentState, segmentIndex *int, url PlaybackURL) (done bool, err error) {
	logger := r.deps.Logger.With("room", settings.RoomID)

	resp, err := r.deps.StreamOpener.Open(ctx, StreamRequest{URL: url.URL, Referer: settings.Referer, Cookie: settings.Cookie})
	if err != nil {
		sess.markDegraded(settings, r.now())
		return false, nil
	}
	if verr := ValidateStreamResponse(resp); verr != nil {
		resp.Body.Close()
		sess.markDegraded(settings, r.now())
		return false, nil
	}

	stopWatch := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-handle.Stopped():
		case <-ctx.Done():
		case <-stopWatch:
			return
		}
		resp.Body.Close()
	}()
	defer func() {
		close(stopWatch)
		<-closed
	}()

	_, hasExpiry := StreamURLExpireAt(url.URL)

	parser := flvstream.New()
	buf := make([]byte, 64*1024)

	for {
		select {
		case <-handle.Stopped():
			return true, nil
		case <-ctx.Done():
			return true, ctx.Err()
		default:
		}

		if hasExpiry {
			if _, refresh := ShouldRefreshStreamURL(url.URL, StreamURLRefreshLeadSecs, r.now()); refresh {
				return false, nil
			}
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			sess.clearMissing()
			events, parseErr := parser.Push(buf[:n])
			if parseErr != nil {
				logger.Warn("container parse error", "error", parseErr)
				sess.markDegraded(settings, r.now())
				return false, nil
			}
			for _, event := range events {
				if hErr := r.handleEvent(ctx, handle, settings, sess, cache, cur, segmentIndex, event); hErr != nil {
					if errors.Is(hErr, errDegraded) {
						return false, nil
					}
					return true, hErr
				}
			}
		}

		if n == 0 || readErr != nil {
			if readErr != nil && readErr != io.EOF {
				logger.Warn("stream read error", "error", readErr)
			}
			sess.markMissing(r.now())
			if sess.shouldForceSplitOnGap(settings, r.now()) {
				sess.splitReason = splitReasonMissing
				if rErr := r.rotateSegment(ctx, settings, sess, cache, cur, segmentIndex); rErr != nil {
					return true, rErr
				}
			}
			if !r.sleepOrStop(ctx, handle, settings.StreamRetryDelay()) {
				return true, nil
			}
			return false, nil
		}
	}
}

// handleEvent applies one parsed event to the Header Cache and the
// currently open segment, evaluating the split policy along the way.
func (r *Recorder) handleEvent(ctx context.Context, handle *Handle, settings RoomSettings, sess *session, cache *flvstream.HeaderCache, cur **segmentState, segmentIndex *int, event flvstream.Event) error {
	cache.Observe(event)

	if event.Kind == flvstream.EventHeader {
		if *cur == nil {
			return r.openNewSegment(ctx, settings, sess, cur, segmentIndex, cache.Prime())
		}
		return nil
	}

	tag := event.Tag
	now := r.now()

	if degraded := sess.recordProgress(tag.Timestamp(), now); degraded {
		sess.markDegraded(settings, now)
		return errDegraded
	}

	if title := handle.TakeTitle(); title != "" {
		sess.observeTitle(title, settings, now)
	} else {
		sess.applyPendingTitleIfDue(settings, now)
	}
	if handle.TakeSplitRequest() {
		sess.requestSplit()
	}
	sess.checkTimeBasedSplit(settings, now)
	if *cur != nil {
		sess.checkSizeBasedSplit(settings, (*cur).writer.BytesWritten())
	}

	if sess.readyToRotate(flvstream.IsKeyframe(tag), cache.Ready()) {
		if err := r.rotateSegment(ctx, settings, sess, cache, cur, segmentIndex); err != nil {
			return err
		}
	}

	if *cur == nil {
		if !cache.Ready() {
			return nil
		}
		if err := r.openNewSegment(ctx, settings, sess, cur, segmentIndex, cache.Prime()); err != nil {
			return err
		}
	}

	if _, err := (*cur).writer.Write(flvstream.Encode(event)); err != nil {
		return err
	}
	return nil
}

func (r *Recorder) rotateSegment(ctx context.Context, settings RoomSettings, sess *session, cache *flvstream.HeaderCache, cur **segmentState, segmentIndex *int) error {
	old := *cur
	*cur = nil
	if old != nil {
		r.finalizeSegment(ctx, old, models.LiveRecordStatusCompleted, nil)
		r.enqueueRemux(old)
	}
	return r.openNewSegment(ctx, settings, sess, cur, segmentIndex, cache.Prime())
}

func (r *Recorder) openNewSegment(ctx context.Context, settings RoomSettings, sess *session, cur **segmentState, segmentIndex *int, preamble []flvstream.Event) error {
	now := r.now()
	task := models.LiveRecordTask{
		RoomID:       settings.RoomID,
		Title:        sess.title,
		SegmentIndex: *segmentIndex,
		Status:       models.LiveRecordStatusRecording,
		StartedAt:    now,
	}
	created, err := r.deps.Store.CreateLiveRecordTask(ctx, task)
	if err != nil {
		return err
	}

	path, sidecarPath := r.deps.Paths(settings.RoomID, *segmentIndex)
	if !settings.ChatEnabled {
		sidecarPath = ""
	}

	writer, err := segmentwriter.Open(path, created.ID, r.deps.Store, sidecarPath)
	if err != nil {
		return err
	}
	for _, event := range preamble {
		if _, werr := writer.Write(flvstream.Encode(event)); werr != nil {
			return werr
		}
	}

	var chat *chatRunner
	if settings.ChatEnabled && r.deps.Chat != nil && sidecarPath != "" {
		chat = r.startChat(ctx, settings, sidecarPath)
	}

	*cur = &segmentState{taskID: created.ID, path: path, writer: writer, chat: chat}
	*segmentIndex++
	sess.onNewSegment(now)
	return nil
}

func (r *Recorder) finalizeSegment(ctx context.Context, seg *segmentState, status models.LiveRecordStatus, cause error) {
	if seg.chat != nil {
		seg.chat.stop()
	}
	if err := seg.writer.Finish(ctx, status, cause); err != nil {
		r.deps.Logger.Warn("finalize segment failed", "task", seg.taskID, "error", err)
	}
}

// enqueueRemux schedules the post-segment remux job (spec §4.4): a copy
// remux from the native segment file into a portable container, with the
// task row's file path and size patched on success. Runs detached so
// rotation and the next segment are never blocked by it.
func (r *Recorder) enqueueRemux(seg *segmentState) {
	if r.deps.Transcoder == nil {
		return
	}
	go func() {
		ctx := context.Background()
		outputPath := remuxOutputPath(seg.path)
		job := transcoder.RemuxJob(seg.taskID, seg.path, outputPath)
		if err := r.deps.Transcoder.Run(ctx, job); err != nil {
			r.deps.Logger.Warn("post-segment remux failed", "task", seg.taskID, "error", err)
			return
		}
		var size int64
		if info, statErr := os.Stat(outputPath); statErr == nil {
			size = info.Size()
		}
		if err := r.deps.Store.UpdateLiveRecordFilePath(ctx, seg.taskID, outputPath, size); err != nil {
			r.deps.Logger.Warn("persist remux output path failed", "task", seg.taskID, "error", err)
		}
	}()
}

func remuxOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".mp4"
}

func hlsOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".ts"
}

// runHLS delegates the room's entire remaining lifetime to the HLS
// sub-recorder (spec §4.4 container branching): one external-transcoder
// copy-remux invocation, monitored until it exits or handle is stopped.
func (r *Recorder) runHLS(ctx context.Context, handle *Handle, settings RoomSettings, url PlaybackURL, segmentIndex int) error {
	path, _ := r.deps.Paths(settings.RoomID, segmentIndex)
	outputPath := hlsOutputPath(path)

	task := models.LiveRecordTask{
		RoomID:       settings.RoomID,
		SegmentIndex: segmentIndex,
		Status:       models.LiveRecordStatusRecording,
		StartedAt:    r.now(),
		FilePath:     outputPath,
	}
	created, err := r.deps.Store.CreateLiveRecordTask(ctx, task)
	if err != nil {
		return err
	}
	return r.deps.HLS.Run(ctx, handle, created.ID, url.URL, outputPath)
}

// sleepOrStop waits d, reporting false if handle.Stop or ctx cancellation
// interrupted the wait instead.
func (r *Recorder) sleepOrStop(ctx context.Context, handle *Handle, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-handle.Stopped():
		return false
	case <-ctx.Done():
		return false
	}
}

// chatRunner owns the goroutine running one segment's chat sidecar
// connection.
type chatRunner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *Recorder) startChat(parent context.Context, settings RoomSettings, sidecarPath string) *chatRunner {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		chatSession, err := r.deps.Chat.Connect(ctx, settings.RoomID, sidecarPath, settings.ChatFilters)
		if err != nil {
			r.deps.Logger.Warn("chat sidecar connect failed", "room", settings.RoomID, "error", err)
			return
		}
		defer chatSession.Close()
		if err := chatSession.Run(ctx); err != nil && ctx.Err() == nil {
			r.deps.Logger.Warn("chat sidecar run failed", "room", settings.RoomID, "error", err)
		}
	}()
	return &chatRunner{cancel: cancel, done: done}
}

func (c *chatRunner) stop() {
	c.cancel()
	<-c.done
}
