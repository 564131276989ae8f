package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time, 1), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
		return
	default:
		close(m.stopped)
	}
}

func (m *manualTicker) Tick() {
	select {
	case m.c <- time.Now():
	default:
	}
}

func TestRunPeriodicRunsImmediatelyAndOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk := newManualTicker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls int32
	task := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	stop := runPeriodicWithTicker(ctx, logger, "test-loop", time.Minute, task, func(time.Duration) ticker {
		return tk
	})
	defer stop()

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&calls) < 1 {
		select {
		case <-deadline:
			t.Fatal("expected immediate run of task")
		default:
		}
	}

	tk.Tick()
	deadline = time.After(time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("expected second run after tick")
		default:
		}
	}
}

func TestRunPeriodicStopWaitsForLoopExit(t *testing.T) {
	ctx := context.Background()
	tk := newManualTicker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stop := runPeriodicWithTicker(ctx, logger, "test-loop", time.Minute, func(context.Context) error {
		return nil
	}, func(time.Duration) ticker {
		return tk
	})

	stop()

	select {
	case <-tk.stopped:
	default:
		t.Fatal("expected ticker to be stopped after Stop returns")
	}
}

func TestRunPeriodicLogsTaskErrorAndKeepsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk := newManualTicker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls int32
	task := func(context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return errors.New("boom")
		}
		return nil
	}

	stop := runPeriodicWithTicker(ctx, logger, "test-loop", time.Minute, task, func(time.Duration) ticker {
		return tk
	})
	defer stop()

	tk.Tick()
	deadline := time.After(time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("expected loop to keep running after a task error")
		default:
		}
	}
}

func TestWaitGroupWaitsForAllStops(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stopA := runPeriodicWithTicker(ctx, logger, "a", 0, func(context.Context) error { return nil }, newTimeTicker)
	stopB := runPeriodicWithTicker(ctx, logger, "b", 0, func(context.Context) error { return nil }, newTimeTicker)

	WaitGroup(stopA, stopB)()
}
