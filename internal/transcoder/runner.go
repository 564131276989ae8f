// Package transcoder wraps the external transcoder binary (spec §6):
// command-array invocation, spawn-and-monitor lifecycle, and a `q`-over-stdin
// graceful stop signal, modeled on the teacher's
// cmd/transcoder/main.go (startFFmpeg/logWriter) and bounded by a semaphore
// worker pool per spec §5's blocking-pool note.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"golang.org/x/sync/semaphore"

	"reactioncut/internal/apperr"
)

// Job is one external transcoder invocation.
type Job struct {
	// Args is the full command-array argument list passed to the binary,
	// e.g. {"-y", "-i", "in.flv", "-c", "copy", "out.mp4"}.
	Args []string
	// Label identifies the job in logs (e.g. a task id or room id), not
	// passed to the binary.
	Label string
}

// Handle represents a running job. Stop delivers the `q` graceful-stop
// keystroke spec §9 requires for blocking transcoder work; Wait blocks
// until the process exits.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	done   chan struct{}
	waitMu sync.Mutex
	waitErr error
}

// Stop writes the ffmpeg interactive-quit keystroke to the child's stdin,
// requesting a graceful finalize rather than a hard kill. Each call writes
// the keystroke again; once the process has exited and its stdin pipe is
// closed, the write fails and Stop returns that error.
func (h *Handle) Stop() error {
	if h.stdin == nil {
		return nil
	}
	_, err := h.stdin.Write([]byte("q"))
	if err != nil {
		return fmt.Errorf("transcoder: write stop signal: %w", err)
	}
	return nil
}

// Kill cancels the job's context, sending the process a hard kill signal.
// Used at shutdown when a graceful Stop has not finished in time.
func (h *Handle) Kill() {
	h.cancel()
}

// Wait blocks until the job exits and returns its terminal error, if any.
// Safe to call from multiple goroutines; the underlying cmd.Wait runs once.
func (h *Handle) Wait() error {
	<-h.done
	h.waitMu.Lock()
	defer h.waitMu.Unlock()
	return h.waitErr
}

// Runner spawns and monitors external transcoder processes, bounding the
// number running concurrently with a semaphore (spec §5: CPU/IO-heavy
// remux/concat/segment calls run on a blocking pool, not inline).
type Runner struct {
	binary string
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the Runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a Runner. binary is the external transcoder executable
// name or path (e.g. "ffmpeg"); maxConcurrent bounds how many jobs may run
// at once.
func New(binary string, maxConcurrent int64, opts ...Option) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	r := &Runner{
		binary: binary,
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start acquires a pool slot and spawns the job, returning a Handle once
// the process is running. It blocks until a slot is free or ctx is
// canceled. The spawned process itself runs under its own cancelable
// context so that Kill can stop it independently of ctx's lifetime once
// started.
func (r *Runner) Start(ctx context.Context, job Job) (*Handle, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("transcoder: acquire worker slot: %w", err)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, r.binary, job.Args...)

	logger := r.logger.With("job", job.Label)
	cmd.Stdout = newLineLogWriter(logger, "stdout")
	cmd.Stderr = newLineLogWriter(logger, "stderr")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		r.sem.Release(1)
		return nil, apperr.Wrap(apperr.KindTransient, "transcoder: open stdin pipe", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		r.sem.Release(1)
		return nil, apperr.Wrap(apperr.KindTransient, "transcoder: start process", err)
	}

	h := &Handle{cmd: cmd, stdin: stdin, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer r.sem.Release(1)
		err := cmd.Wait()
		h.waitMu.Lock()
		h.waitErr = err
		h.waitMu.Unlock()
		if err != nil {
			logger.Warn("transcoder job exited with error", "error", err)
		} else {
			logger.Info("transcoder job completed")
		}
		cancel()
		close(h.done)
	}()

	return h, nil
}

// Run starts job and blocks until it completes, returning the terminal
// error if any. Intended for callers that don't need a mid-flight Stop.
func (r *Runner) Run(ctx context.Context, job Job) error {
	h, err := r.Start(ctx, job)
	if err != nil {
		return err
	}
	return h.Wait()
}

type lineLogWriter struct {
	logger *slog.Logger
	stream string
}

func newLineLogWriter(logger *slog.Logger, stream string) *lineLogWriter {
	return &lineLogWriter{logger: logger, stream: stream}
}

// Write buffers nothing across calls; ffmpeg writes whole lines at a time
// in practice, and a split line merely costs a trimmed partial log entry.
func (w *lineLogWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		var line []byte
		if idx == -1 {
			line = p
			p = nil
		} else {
			line = p[:idx]
			p = p[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.logger.Debug(string(line), "stream", w.stream)
	}
	return total, nil
}
