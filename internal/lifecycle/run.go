// Package lifecycle runs long-lived background loops (the Reconciliation
// Loop and Recovery Sweeps, spec §4.9/§4.10) and coordinates their graceful
// shutdown, generalized from the teacher's pattern of running one
// *http.Server until context cancellation (internal/serverutil.Run) and its
// injectable-ticker periodic-worker idiom (cmd/server/session_purger.go)
// to "run one ticking function until ctx is done".
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ticker abstracts time.Ticker so tests can drive ticks deterministically,
// mirroring the teacher's purgeTicker interface.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()                { t.t.Stop() }

type tickerFactory func(time.Duration) ticker

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Task is one periodic unit of work, e.g. a single Reconciliation Loop pass
// or a single Recovery Sweep pass.
type Task func(ctx context.Context) error

// Stop cancels a running loop and blocks until its goroutine has exited.
type Stop func()

// RunPeriodic runs task once immediately, then every interval, until ctx is
// canceled or the returned Stop is invoked. A task error is logged and does
// not stop the loop: a single failed reconciliation or recovery pass should
// not take down the others (spec §4.9/§4.10 run independently).
func RunPeriodic(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, task Task) Stop {
	return runPeriodicWithTicker(ctx, logger, name, interval, task, newTimeTicker)
}

func runPeriodicWithTicker(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, task Task, newTicker tickerFactory) Stop {
	if logger == nil {
		logger = slog.Default()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	runOnce := func() {
		if err := task(loopCtx); err != nil {
			logger.Error("periodic task failed", "loop", name, "error", err)
		}
	}

	go func() {
		defer close(done)
		runOnce()

		if interval <= 0 {
			return
		}
		tk := newTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-tk.C():
				runOnce()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// WaitGroup runs a set of Stop functions together and blocks until every
// underlying goroutine has exited, for shutting down several RunPeriodic
// loops (e.g. reconciliation and recovery) as one unit from cmd/reactiond.
func WaitGroup(stops ...Stop) Stop {
	return func() {
		var wg sync.WaitGroup
		wg.Add(len(stops))
		for _, stop := range stops {
			stop := stop
			go func() {
				defer wg.Done()
				stop()
			}()
		}
		wg.Wait()
	}
}
