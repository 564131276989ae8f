package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
	"reactioncut/internal/transcoder"
)

// fakeTranscoder stands in for *transcoder.Runner: it never shells out to
// ffmpeg, just drops a placeholder file at whatever path the job's
// argument list ends with (or, for a segment-muxer pattern, a small fixed
// set of numbered parts alongside it).
type fakeTranscoder struct{}

func (fakeTranscoder) Run(_ context.Context, job transcoder.Job) error {
	out := job.Args[len(job.Args)-1]
	if strings.Contains(out, "%") {
		dir := filepath.Dir(out)
		for i := 1; i <= 2; i++ {
			path := filepath.Join(dir, "part-00"+string(rune('0'+i))+".mp4")
			if err := os.WriteFile(path, []byte("segment"), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
	return os.WriteFile(out, []byte("data"), 0o644)
}

// fakeProber reports a fixed duration and codec without touching disk.
type fakeProber struct {
	duration float64
	codec    string
}

func (f fakeProber) Duration(context.Context, string) (float64, error) { return f.duration, nil }
func (f fakeProber) VideoCodec(context.Context, string) (string, error) {
	if f.codec == "" {
		return "h264", nil
	}
	return f.codec, nil
}

func newTestTask(t *testing.T, repo store.Repository, segmentPrefix string) models.SubmissionTask {
	t.Helper()
	task, err := repo.CreateTask(context.Background(), models.SubmissionTask{
		TaskID:        "task-1",
		Title:         "test task",
		SegmentPrefix: segmentPrefix,
		Status:        models.TaskStatusPending,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func writeSourceFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("source bytes"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}

func TestEngineRunProducesSegmentedOutput(t *testing.T) {
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	ctx := context.Background()
	dir := t.TempDir()

	newTestTask(t, repo, "P")
	src := writeSourceFile(t, dir, "source.mp4")
	if _, err := repo.AddSourceVideo(ctx, models.TaskSourceVideo{
		ID:       "src-1",
		TaskID:   "task-1",
		FilePath: src,
		Ordinal:  1,
	}); err != nil {
		t.Fatalf("add source video: %v", err)
	}

	if _, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{
		TaskID:       "task-1",
		WorkflowType: models.WorkflowTypeSubmission,
		Status:       models.WorkflowStatusRunning,
		CurrentStep:  models.WorkflowStepWaitReady,
		Config: models.SyncConfig{
			EnableSegmentation:    true,
			SegmentDurationSecond: 60,
			SegmentPrefix:         "P",
		},
	}); err != nil {
		t.Fatalf("create workflow instance: %v", err)
	}

	engine := &Engine{
		Store:      repo,
		Transcoder: fakeTranscoder{},
		Prober:     fakeProber{duration: 120},
		BaseDir:    dir,
	}

	if err := engine.Run(ctx, "task-1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	task, err := repo.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskStatusWaitUpload {
		t.Fatalf("expected task status %s, got %s", models.TaskStatusWaitUpload, task.Status)
	}

	segments, err := repo.ListOutputSegments(ctx, "task-1")
	if err != nil {
		t.Fatalf("list output segments: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 output segments, got %d", len(segments))
	}
	if segments[0].PartName != "P1" || segments[1].PartName != "P2" {
		t.Fatalf("unexpected part names: %q %q", segments[0].PartName, segments[1].PartName)
	}
}

func TestEngineRunWithoutSegmentationSavesMergedVideo(t *testing.T) {
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	ctx := context.Background()
	dir := t.TempDir()

	newTestTask(t, repo, "")
	src := writeSourceFile(t, dir, "source.mp4")
	if _, err := repo.AddSourceVideo(ctx, models.TaskSourceVideo{ID: "src-1", TaskID: "task-1", FilePath: src, Ordinal: 1}); err != nil {
		t.Fatalf("add source video: %v", err)
	}

	if _, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{
		TaskID:       "task-1",
		WorkflowType: models.WorkflowTypeSubmission,
		Status:       models.WorkflowStatusRunning,
		CurrentStep:  models.WorkflowStepWaitReady,
	}); err != nil {
		t.Fatalf("create workflow instance: %v", err)
	}

	engine := &Engine{
		Store:      repo,
		Transcoder: fakeTranscoder{},
		Prober:     fakeProber{duration: 60},
		BaseDir:    dir,
	}
	if err := engine.Run(ctx, "task-1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	merged, err := repo.GetMergedVideo(ctx, "task-1")
	if err != nil {
		t.Fatalf("get merged video: %v", err)
	}
	if merged.Path == "" {
		t.Fatal("expected merged video path to be set")
	}

	task, err := repo.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskStatusWaitUpload {
		t.Fatalf("expected waiting_upload, got %s", task.Status)
	}
}

func TestEngineRunHonorsCancel(t *testing.T) {
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	ctx := context.Background()

	newTestTask(t, repo, "")
	if _, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{
		TaskID:       "task-1",
		WorkflowType: models.WorkflowTypeSubmission,
		Status:       models.WorkflowStatusCancelled,
		CurrentStep:  models.WorkflowStepWaitReady,
	}); err != nil {
		t.Fatalf("create workflow instance: %v", err)
	}

	engine := &Engine{Store: repo, Transcoder: fakeTranscoder{}, Prober: fakeProber{}}
	if err := engine.Run(ctx, "task-1"); err != nil {
		t.Fatalf("expected cancellation to be swallowed, got %v", err)
	}

	task, err := repo.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskStatusCancelled {
		t.Fatalf("expected task demoted to cancelled, got %s", task.Status)
	}
}
