package workflow

import (
	"path/filepath"
	"strings"
	"time"
)

// TaskPaths is the directory layout one workflow run writes into, per
// spec §6: base/task_id, with cut/merge/output subdirectories, or
// base/task_id/updates/<stamp>/{cut,merge,output} for a VIDEO_UPDATE run
// so a re-submission never clobbers the files behind the still-live
// original submission.
type TaskPaths struct {
	Root   string
	Clip   string
	Merge  string
	Output string
}

// BuildTaskPaths computes the directory layout for one task's workflow
// run. isUpdate selects the updates/<stamp> branch; now supplies the
// stamp so the same instant is reused consistently across callers within
// one phase run.
func BuildTaskPaths(baseDir, taskID string, isUpdate bool, now time.Time) TaskPaths {
	root := filepath.Join(baseDir, taskID)
	workflowDir := root
	if isUpdate {
		stamp := SanitizeFilename(now.UTC().Format("20060102T150405"))
		workflowDir = filepath.Join(root, "updates", stamp)
	}
	return TaskPaths{
		Root:   workflowDir,
		Clip:   filepath.Join(workflowDir, "cut"),
		Merge:  filepath.Join(workflowDir, "merge"),
		Output: filepath.Join(workflowDir, "output"),
	}
}

// SanitizeFilename replaces each character (rune) outside [A-Za-z0-9._-]
// with one underscore, so a task id, timestamp, or title can be used safely as a
// path component.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
