// Package uploadqueue implements the Upload Queue (spec §4.7): a single
// consumer loop that drives each WAITING_UPLOAD task's segmented or merged
// upload to completion and hands the finished parts to the Remote
// Submission Client. Grounded directly on
// original_source/src-tauri/src/commands/submission.rs's run_submission_upload,
// with the multi-future segment fan-out replaced by a
// golang.org/x/sync/errgroup bounded by upload_concurrency, the way the
// teacher's internal/api/uploads_processor.go bounds its own worker pool.
package uploadqueue

import "time"

const (
	// defaultPollInterval is how long the consumer sleeps when no task is
	// WAITING_UPLOAD (spec §4.7: "sleep 2 s").
	defaultPollInterval = 2 * time.Second

	// defaultUploadConcurrency is applied when Config.UploadConcurrency is
	// unset; spec §5 requires at least 1.
	defaultUploadConcurrency = 2

	// waitUploadErrorBackoff separates consecutive passes over a task that
	// just failed to even start (store errors, missing credentials),
	// keeping a single broken task from spinning the consumer loop hot.
	waitUploadErrorBackoff = 2 * time.Second

	// wakeStreamName is the Redis stream Enqueue appends to and the
	// consumer loop's consumer group reads from.
	wakeStreamName  = "reactioncut:uploadqueue:wake"
	wakeGroupName   = "uploadqueue"
	wakeConsumerTag = "consumer-1"

	// preUploadURL and uploadProfile are the fixed pre-upload endpoint and
	// profile string every chunked upload request carries, segmented or
	// merged alike — the original implementation never varies "profile"
	// by mode, it always sends the literal "ugcfx/bup".
	preUploadURL  = "https://member.bilibili.com/preupload"
	uploadProfile = "ugcfx/bup"
)
