// Package recovery implements the Recovery Sweeps (spec §4.10): a
// one-time startup pass that reconciles in-flight submission tasks and
// live recordings left inconsistent by an unclean shutdown, plus a
// periodic idle-recording reaper. Grounded on
// original_source/src-tauri/src/commands/submission.rs's startup recovery
// routine and live_recorder.rs's stale-recording handling, built on
// internal/lifecycle.RunPeriodic the same way internal/reconcile is.
package recovery

// idleFailureReason is the stored reason when a periodic sweep finds a
// still-live room's recording has gone idle (spec §4.10: `reason "idle"`).
const idleFailureReason = "idle"
