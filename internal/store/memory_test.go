package store

import (
	"context"
	"testing"
	"time"

	"reactioncut/internal/models"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	return repo
}

func TestCreateAndGetTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateTask(ctx, models.SubmissionTask{
		Title:     "hello",
		VideoType: models.VideoTypeOriginal,
		Status:    models.TaskStatusPending,
		Tags:      []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if created.TaskID == "" {
		t.Fatal("expected generated task id")
	}

	fetched, err := repo.GetTask(ctx, created.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if fetched.Title != "hello" || len(fetched.Tags) != 2 {
		t.Fatalf("unexpected fetched task: %+v", fetched)
	}

	if _, err := repo.GetTask(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTaskPartialFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateTask(ctx, models.SubmissionTask{Title: "t", Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	newStatus := models.TaskStatusClipping
	updated, err := repo.UpdateTask(ctx, created.TaskID, TaskUpdate{Status: &newStatus})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Status != models.TaskStatusClipping {
		t.Fatalf("expected status clipping, got %s", updated.Status)
	}
	if updated.Title != "t" {
		t.Fatalf("expected untouched title to survive partial update, got %q", updated.Title)
	}
}

func TestListTasksByStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, status := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusClipping, models.TaskStatusPending} {
		if _, err := repo.CreateTask(ctx, models.SubmissionTask{Title: "t", Status: status}); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	pending, err := repo.ListTasksByStatus(ctx, models.TaskStatusPending)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(pending))
	}

	all, err := repo.ListTasksByStatus(ctx)
	if err != nil {
		t.Fatalf("list all tasks: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks with no filter, got %d", len(all))
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task, err := repo.CreateTask(ctx, models.SubmissionTask{Title: "t", Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := repo.AddSourceVideo(ctx, models.TaskSourceVideo{TaskID: task.TaskID, FilePath: "a.mp4"}); err != nil {
		t.Fatalf("add source video: %v", err)
	}
	if _, err := repo.UpsertOutputSegment(ctx, models.TaskOutputSegment{TaskID: task.TaskID, PartName: "P1"}); err != nil {
		t.Fatalf("upsert output segment: %v", err)
	}

	if err := repo.DeleteTask(ctx, task.TaskID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := repo.GetTask(ctx, task.TaskID); err != ErrNotFound {
		t.Fatalf("expected task gone, got %v", err)
	}
	videos, err := repo.ListSourceVideos(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("list source videos: %v", err)
	}
	if len(videos) != 0 {
		t.Fatalf("expected source videos cascaded away, got %d", len(videos))
	}
	segments, err := repo.ListOutputSegments(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("list output segments: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected output segments cascaded away, got %d", len(segments))
	}
}

func TestLiveRecordTaskLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task, err := repo.CreateLiveRecordTask(ctx, models.LiveRecordTask{RoomID: "room1", Status: models.LiveRecordStatusRecording})
	if err != nil {
		t.Fatalf("create live record task: %v", err)
	}

	active, err := repo.GetActiveLiveRecordTask(ctx, "room1")
	if err != nil {
		t.Fatalf("get active live record task: %v", err)
	}
	if active.ID != task.ID {
		t.Fatalf("expected to find the created task, got %+v", active)
	}

	if err := repo.FinishLiveRecordTask(ctx, task.ID, models.LiveRecordStatusCompleted, time.Now(), 1024, ""); err != nil {
		t.Fatalf("finish live record task: %v", err)
	}
	if _, err := repo.GetActiveLiveRecordTask(ctx, "room1"); err != ErrNotFound {
		t.Fatalf("expected no active task after finish, got %v", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.LoadCredential(ctx, "bilibili"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}
	if err := repo.SaveCredential(ctx, "bilibili", []byte{1, 2, 3}); err != nil {
		t.Fatalf("save credential: %v", err)
	}
	loaded, err := repo.LoadCredential(ctx, "bilibili")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if string(loaded) != string([]byte{1, 2, 3}) {
		t.Fatalf("unexpected loaded credential: %v", loaded)
	}
}

func TestWorkflowInstanceActiveIsMostRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task, err := repo.CreateTask(ctx, models.SubmissionTask{Title: "t", Status: models.TaskStatusPending})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	first, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{TaskID: task.TaskID, Status: models.WorkflowStatusCompleted})
	if err != nil {
		t.Fatalf("create first workflow instance: %v", err)
	}
	second, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{TaskID: task.TaskID, Status: models.WorkflowStatusRunning})
	if err != nil {
		t.Fatalf("create second workflow instance: %v", err)
	}

	active, err := repo.GetActiveWorkflowInstance(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get active workflow instance: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected most recently created instance %s, got %s (first was %s)", second.ID, active.ID, first.ID)
	}
}
