package uploadqueue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
)

// Config configures a Queue's tuning knobs; zero values fall back to
// package defaults.
type Config struct {
	// UploadConcurrency bounds the parallel segment-upload fan-out (spec
	// §5: "configured upload_concurrency, >= 1").
	UploadConcurrency int
	// PollInterval is how long the consumer sleeps between scans when it
	// has no Waker to block on, and the ceiling a configured Waker's Wait
	// blocks for.
	PollInterval time.Duration
}

// Queue is the Upload Queue (spec §4.7): a single consumer goroutine that
// repeatedly picks the oldest WAITING_UPLOAD task and runs it to
// completion (or failure) before picking the next one.
type Queue struct {
	Store       Store
	Uploader    Uploader
	Submitter   Submitter
	Credentials mediaclient.CredentialProvider
	Refresher   CredentialRefresher
	EditCache   *EditCache
	Waker       Waker
	Logger      *slog.Logger

	UploadConcurrency int
	PollInterval      time.Duration

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New constructs a Queue, applying Config defaults. A nil Waker falls back
// to a plain poll-interval sleep.
func New(store Store, uploader Uploader, submitter Submitter, creds mediaclient.CredentialProvider, refresher CredentialRefresher, cfg Config) *Queue {
	q := &Queue{
		Store:             store,
		Uploader:          uploader,
		Submitter:         submitter,
		Credentials:       creds,
		Refresher:         refresher,
		EditCache:         NewEditCache(),
		UploadConcurrency: cfg.UploadConcurrency,
		PollInterval:      cfg.PollInterval,
	}
	if q.UploadConcurrency <= 0 {
		q.UploadConcurrency = defaultUploadConcurrency
	}
	if q.PollInterval <= 0 {
		q.PollInterval = defaultPollInterval
	}
	return q
}

func (q *Queue) logger() *slog.Logger {
	if q.Logger != nil {
		return q.Logger
	}
	return slog.Default()
}

func (q *Queue) waker() Waker {
	if q.Waker != nil {
		return q.Waker
	}
	return noopWaker{}
}

// Start launches the single consumer goroutine. Calling Start more than
// once is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		q.cancel = cancel
		q.done = make(chan struct{})
		go func() {
			defer close(q.done)
			q.run(loopCtx)
		}()
	})
}

// Shutdown cancels the consumer loop and waits for its current task (if
// any) to finish or ctx to expire, whichever comes first.
func (q *Queue) Shutdown(ctx context.Context) error {
	if q.cancel == nil {
		return nil
	}
	q.cancel()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue wakes a blocked consumer after a task transitions to
// WAITING_UPLOAD, so the queue reacts immediately instead of waiting out
// PollInterval. Safe to call with no consumer running.
func (q *Queue) Enqueue(ctx context.Context) {
	if err := q.waker().Notify(ctx); err != nil {
		q.logger().Warn("uploadqueue: wake notify failed", "error", err)
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok, err := q.pickOldestWaiting(ctx)
		if err != nil {
			q.logger().Error("uploadqueue: list waiting tasks failed", "error", err)
			q.sleep(ctx, waitUploadErrorBackoff)
			continue
		}
		if !ok {
			if err := q.waker().Wait(ctx, q.PollInterval); err != nil {
				return
			}
			continue
		}

		if err := q.uploadTask(ctx, task); err != nil {
			q.logger().Error("uploadqueue: upload_task failed", "task_id", task.TaskID, "error", err)
		}
	}
}

// pickOldestWaiting loads every WAITING_UPLOAD task and returns the one
// with the earliest CreatedAt. store.Repository.ListTasksByStatus does not
// guarantee creation order (the in-memory backend sorts by task id), so
// the queue sorts explicitly rather than trusting the store's order.
func (q *Queue) pickOldestWaiting(ctx context.Context) (models.SubmissionTask, bool, error) {
	tasks, err := q.Store.ListTasksByStatus(ctx, models.TaskStatusWaitUpload)
	if err != nil {
		return models.SubmissionTask{}, false, err
	}
	if len(tasks) == 0 {
		return models.SubmissionTask{}, false, nil
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks[0], true, nil
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
