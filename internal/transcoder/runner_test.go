package transcoder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testRunner(t *testing.T, maxConcurrent int64) *Runner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("sh", maxConcurrent, WithLogger(logger))
}

func TestRunnerRunCompletesSuccessfulJob(t *testing.T) {
	r := testRunner(t, 2)
	job := Job{Label: "ok", Args: []string{"-c", "exit 0"}}
	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestRunnerRunReturnsErrorForFailingJob(t *testing.T) {
	r := testRunner(t, 2)
	job := Job{Label: "fail", Args: []string{"-c", "exit 7"}}
	if err := r.Run(context.Background(), job); err == nil {
		t.Fatal("expected error from failing job")
	}
}

func TestHandleStopDeliversGracefulSignal(t *testing.T) {
	r := testRunner(t, 2)
	// Reads one byte from stdin and exits 0 only if it is 'q'.
	job := Job{Label: "stop", Args: []string{"-c", `read -n1 c; if [ "$c" = "q" ]; then exit 0; else exit 1; fi`}}

	h, err := r.Start(context.Background(), job)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("expected graceful exit after stop signal, got %v", err)
	}
}

func TestRunnerBoundsConcurrencyWithSemaphore(t *testing.T) {
	r := testRunner(t, 1)

	first, err := r.Start(context.Background(), Job{Label: "first", Args: []string{"-c", "sleep 0.2"}})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Start(ctx, Job{Label: "second", Args: []string{"-c", "exit 0"}}); err == nil {
		t.Fatal("expected second job to block on the single worker slot and time out")
	}

	if err := first.Wait(); err != nil {
		t.Fatalf("first job wait: %v", err)
	}
}

func TestLineLogWriterSplitsAndTrimsLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := newLineLogWriter(logger, "stdout")

	if _, err := w.Write([]byte("frame=1\n  frame=2  \n\nframe=3")); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"frame=1", "frame=2", "frame=3"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("expected log output to contain %q, got %q", want, out)
		}
	}
}
