package store

import (
	"context"
	"os"
	"testing"

	"reactioncut/internal/models"
)

// TestPostgresRepositoryRoundTrip runs only when a real Postgres DSN is
// provided, mirroring the teacher's BITRIVER_TEST_POSTGRES_DSN skip idiom
// (internal/storage/postgres_test_helpers.go) rather than spinning up a
// docker-backed ephemeral instance from inside the test itself.
func TestPostgresRepositoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("REACTIONCUT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REACTIONCUT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, dsn)
	if err != nil {
		t.Fatalf("new postgres repository: %v", err)
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	task, err := repo.CreateTask(ctx, models.SubmissionTask{
		Title:     "integration",
		VideoType: models.VideoTypeOriginal,
		Status:    models.TaskStatusPending,
		Tags:      []string{"x", "y"},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	defer repo.DeleteTask(ctx, task.TaskID)

	fetched, err := repo.GetTask(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if fetched.Title != "integration" || len(fetched.Tags) != 2 {
		t.Fatalf("unexpected fetched task: %+v", fetched)
	}
}
