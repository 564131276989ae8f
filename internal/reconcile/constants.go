// Package reconcile implements the Remote Reconciliation Loop (spec
// §4.9): a periodic paginated scan of the remote audit endpoint that
// reconciles each local task's remote_state and reject_reason against
// what bilibili currently reports. Grounded on
// original_source/src-tauri/src/commands/submission.rs's reconciliation
// pass and built on internal/lifecycle.RunPeriodic the same way
// internal/recovery's sweeps are.
package reconcile

import "time"

// defaultInterval is applied when Config.Interval is unset; settings name
// this submission_remote_refresh_minutes and require it be >= 1 minute.
const defaultInterval = 5 * time.Minute
