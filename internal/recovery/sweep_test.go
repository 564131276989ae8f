package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
)

type fakeEngine struct {
	ran chan string
}

func (f *fakeEngine) Run(_ context.Context, taskID string) error {
	if f.ran != nil {
		f.ran <- taskID
	}
	return nil
}

func newSweeper(t *testing.T, repo store.Repository, engine WorkflowRunner, fixedNow time.Time) *Sweeper {
	t.Helper()
	s := New(repo, engine, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestStartupSweepResumesUploadingTasks(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	if _, err := repo.CreateTask(ctx, models.SubmissionTask{TaskID: "t1", Status: models.TaskStatusUploading}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	s := newSweeper(t, repo, nil, time.Now())
	if err := s.StartupSweep(ctx); err != nil {
		t.Fatalf("StartupSweep: %v", err)
	}

	got, _ := repo.GetTask(ctx, "t1")
	if got.Status != models.TaskStatusWaitUpload {
		t.Fatalf("status = %s, want WAITING_UPLOAD", got.Status)
	}
}

func TestStartupSweepResetsAndRelaunchesPipelineTasks(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	if _, err := repo.CreateTask(ctx, models.SubmissionTask{TaskID: "t2", Status: models.TaskStatusClipping}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{
		ID: "wf-2", TaskID: "t2",
		WorkflowType: models.WorkflowTypeSubmission,
		Status:       models.WorkflowStatusRunning,
		CurrentStep:  models.WorkflowStepClip,
	}); err != nil {
		t.Fatalf("create workflow instance: %v", err)
	}

	engine := &fakeEngine{ran: make(chan string, 1)}
	s := newSweeper(t, repo, engine, time.Now())
	if err := s.StartupSweep(ctx); err != nil {
		t.Fatalf("StartupSweep: %v", err)
	}

	got, _ := repo.GetTask(ctx, "t2")
	if got.Status != models.TaskStatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
	instance, err := repo.GetActiveWorkflowInstance(ctx, "t2")
	if err != nil {
		t.Fatalf("get active workflow instance: %v", err)
	}
	if instance.Status != models.WorkflowStatusPending || instance.CurrentStep != models.WorkflowStepWaitReady {
		t.Fatalf("instance not reset: %+v", instance)
	}

	select {
	case taskID := <-engine.ran:
		if taskID != "t2" {
			t.Fatalf("relaunched task = %s, want t2", taskID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the workflow engine to be relaunched")
	}
}

func TestStartupSweepHandlesMissingAndRecentRecordings(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	now := time.Now()
	dir := t.TempDir()

	missingPath := filepath.Join(dir, "missing.flv")
	if _, err := repo.CreateLiveRecordTask(ctx, models.LiveRecordTask{
		ID: "rec-missing", RoomID: "room-1", FilePath: missingPath,
		Status: models.LiveRecordStatusRecording, StartedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create live record task: %v", err)
	}

	recentPath := filepath.Join(dir, "recent.flv")
	if err := os.WriteFile(recentPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write recent file: %v", err)
	}
	if _, err := repo.CreateLiveRecordTask(ctx, models.LiveRecordTask{
		ID: "rec-recent", RoomID: "room-2", FilePath: recentPath,
		Status: models.LiveRecordStatusRecording, StartedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create live record task: %v", err)
	}

	s := newSweeper(t, repo, nil, now)
	if err := s.StartupSweep(ctx); err != nil {
		t.Fatalf("StartupSweep: %v", err)
	}

	// Re-fetch via ListStaleLiveRecordTasks with a far-future cutoff since
	// Repository has no direct get-by-id for live record tasks.
	all, err := repo.ListStaleLiveRecordTasks(ctx, now.Add(365*24*time.Hour))
	if err != nil {
		t.Fatalf("list stale live record tasks: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no rows still RECORDING after the sweep, got %d", len(all))
	}
}

func TestPeriodicSweepStopsIdleWhenRoomOffline(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "idle.flv")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	oldTime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := repo.CreateLiveRecordTask(ctx, models.LiveRecordTask{
		ID: "rec-idle", RoomID: "room-3", FilePath: path,
		Status: models.LiveRecordStatusRecording, StartedAt: oldTime,
	}); err != nil {
		t.Fatalf("create live record task: %v", err)
	}
	if err := repo.UpsertAnchor(ctx, models.Anchor{RoomID: "room-3", LiveStatus: false}); err != nil {
		t.Fatalf("upsert anchor: %v", err)
	}

	s := newSweeper(t, repo, nil, time.Now())
	if err := s.PeriodicSweep(ctx); err != nil {
		t.Fatalf("PeriodicSweep: %v", err)
	}

	all, err := repo.ListStaleLiveRecordTasks(ctx, time.Now().Add(365*24*time.Hour))
	if err != nil {
		t.Fatalf("list stale live record tasks: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected the idle offline recording to leave RECORDING, got %d still recording", len(all))
	}
}
