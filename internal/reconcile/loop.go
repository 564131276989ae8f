package reconcile

import (
	"context"
	"log/slog"
	"time"

	"reactioncut/internal/lifecycle"
	"reactioncut/internal/store"
)

// Config configures a Loop's tuning knobs; a zero Interval falls back to
// defaultInterval.
type Config struct {
	Interval time.Duration
}

// Loop is the Remote Reconciliation Loop (spec §4.9).
type Loop struct {
	Store       Store
	Fetcher     AuditFetcher
	Credentials CredentialProvider
	Logger      *slog.Logger

	Interval time.Duration
}

// New constructs a Loop, applying Config defaults.
func New(s Store, fetcher AuditFetcher, creds CredentialProvider, cfg Config) *Loop {
	l := &Loop{Store: s, Fetcher: fetcher, Credentials: creds, Interval: cfg.Interval}
	if l.Interval <= 0 {
		l.Interval = defaultInterval
	}
	return l
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Start launches the periodic scan via internal/lifecycle.RunPeriodic,
// running one pass immediately and then every Interval until stopped.
func (l *Loop) Start(ctx context.Context) lifecycle.Stop {
	return lifecycle.RunPeriodic(ctx, l.logger(), "reconcile", l.Interval, l.runOnce)
}

// runOnce is one reconciliation pass: load credentials or skip, fetch
// every audit entry, then reconcile every local task carrying a bvid
// against the resulting bvid -> entry map.
func (l *Loop) runOnce(ctx context.Context) error {
	if _, err := l.Credentials.Load(ctx); err != nil {
		l.logger().Warn("reconcile: no usable credentials, skipping pass", "error", err)
		return nil
	}

	entries, err := l.Fetcher.FetchAuditPage(ctx)
	if err != nil {
		return err
	}
	byBVID := make(map[string]remoteAuditState, len(entries))
	for _, entry := range entries {
		byBVID[entry.BVID] = remoteAuditState{state: entry.State, reason: entry.RejectReason}
	}

	tasks, err := l.Store.ListTasksByStatus(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.RemoteIdentifier == "" {
			continue
		}
		remote, found := byBVID[task.RemoteIdentifier]
		state := int(0)
		reason := ""
		if found {
			state = int(remote.state)
			reason = remote.reason
		}
		if task.RemoteState == state && task.RejectReason == reason {
			continue
		}
		newState, newReason := state, reason
		if _, err := l.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{RemoteState: &newState, RejectReason: &newReason}); err != nil {
			l.logger().Error("reconcile: update task failed", "task_id", task.TaskID, "error", err)
		}
	}
	return nil
}

type remoteAuditState struct {
	state  int64
	reason string
}
