package uploadqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
	"reactioncut/internal/remoteapi"
	"reactioncut/internal/store"
	"reactioncut/internal/uploadclient"
)

// fakeUploader stands in for *uploadclient.Client: it never talks to the
// network, just mints an increasing cid per call and records the requests
// it was handed for assertions.
type fakeUploader struct {
	nextCID int64
	calls   []uploadclient.Request
	fail    error
}

func (f *fakeUploader) Upload(_ context.Context, req uploadclient.Request) (uploadclient.Result, error) {
	f.calls = append(f.calls, req)
	if f.fail != nil {
		return uploadclient.Result{}, f.fail
	}
	f.nextCID++
	return uploadclient.Result{
		CID:      f.nextCID,
		Filename: req.Name + ".mp4",
		Session:  models.UploadSession{SessionID: "sess", Endpoint: "e", SessionAuth: "a", URI: "u", ChunkSize: 1, BizID: 1, TotalBytes: req.FileSize},
	}, nil
}

// fakeSubmitter stands in for *remoteapi.Client.
type fakeSubmitter struct {
	submitResult    remoteapi.SubmissionResult
	submitErr       error
	submitUpdateErr error
	addToCollErr    error
	fetchAID        int64
	fetchErr        error

	submittedParts []remoteapi.VideoPart
	addedToColl    bool
}

func (f *fakeSubmitter) Submit(_ context.Context, _ remoteapi.SubmissionInfo, parts []remoteapi.VideoPart) (remoteapi.SubmissionResult, error) {
	f.submittedParts = parts
	if f.submitErr != nil {
		return remoteapi.SubmissionResult{}, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeSubmitter) SubmitUpdate(_ context.Context, _ remoteapi.SubmissionInfo, parts []remoteapi.VideoPart, _ int64) error {
	f.submittedParts = parts
	return f.submitUpdateErr
}

func (f *fakeSubmitter) AddToCollection(_ context.Context, _ string, _, _, _ int64) error {
	f.addedToColl = true
	return f.addToCollErr
}

func (f *fakeSubmitter) FetchAIDByBVID(_ context.Context, _ string) (int64, error) {
	return f.fetchAID, f.fetchErr
}

type fakeCredentials struct {
	auth mediaclient.AuthInfo
	err  error
}

func (f fakeCredentials) Load(context.Context) (mediaclient.AuthInfo, error) { return f.auth, f.err }
func (f fakeCredentials) Save(context.Context, mediaclient.AuthInfo) error   { return nil }

func newRepoWithTask(t *testing.T, task models.SubmissionTask) store.Repository {
	t.Helper()
	repo, err := store.NewMemoryRepository()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	if _, err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return repo
}

func newQueue(repo store.Repository, uploader Uploader, submitter Submitter) *Queue {
	return New(repo, uploader, submitter, fakeCredentials{auth: mediaclient.AuthInfo{Cookie: "c", CSRF: "x"}}, nil, Config{UploadConcurrency: 2})
}

func TestUploadTaskMergedModeSubmitsNewVideo(t *testing.T) {
	ctx := context.Background()
	task := models.SubmissionTask{
		TaskID:    "task-1",
		Title:     "a title",
		Tags:      []string{"tag1", "tag2"},
		VideoType: models.VideoTypeOriginal,
		Status:    models.TaskStatusWaitUpload,
	}
	repo := newRepoWithTask(t, task)

	dir := t.TempDir()
	mergedPath := filepath.Join(dir, "merged.mp4")
	if err := os.WriteFile(mergedPath, []byte("merged bytes"), 0o644); err != nil {
		t.Fatalf("write merged file: %v", err)
	}
	if err := repo.UpsertMergedVideo(ctx, models.MergedVideo{TaskID: "task-1", Path: mergedPath, Size: 12}); err != nil {
		t.Fatalf("upsert merged video: %v", err)
	}

	uploader := &fakeUploader{}
	submitter := &fakeSubmitter{submitResult: remoteapi.SubmissionResult{BVID: "BV1", AID: 42}}
	q := newQueue(repo, uploader, submitter)

	if err := q.uploadTask(ctx, task); err != nil {
		t.Fatalf("uploadTask: %v", err)
	}

	got, err := repo.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.RemoteIdentifier != "BV1" || got.RemoteAID != 42 {
		t.Fatalf("bvid/aid not persisted: %+v", got)
	}
	if len(uploader.calls) != 1 {
		t.Fatalf("expected exactly one upload call, got %d", len(uploader.calls))
	}
	if uploader.calls[0].Profile != uploadProfile || uploader.calls[0].PreUploadURL != preUploadURL {
		t.Fatalf("unexpected pre-upload wiring: %+v", uploader.calls[0])
	}
	if len(submitter.submittedParts) != 1 || submitter.submittedParts[0].Title != "P1" {
		t.Fatalf("unexpected merged part: %+v", submitter.submittedParts)
	}
}

func TestUploadTaskSegmentedModeBuildsPartsInOrder(t *testing.T) {
	ctx := context.Background()
	task := models.SubmissionTask{
		TaskID:        "task-2",
		Title:         "segmented",
		Tags:          []string{"t"},
		SegmentPrefix: "P",
		SyncConfig:    models.SyncConfig{EnableSegmentation: true},
		Status:        models.TaskStatusWaitUpload,
	}
	repo := newRepoWithTask(t, task)

	dir := t.TempDir()
	for i, name := range []string{"seg-a", "seg-b"} {
		path := filepath.Join(dir, name+".mp4")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write segment file: %v", err)
		}
		if _, err := repo.UpsertOutputSegment(ctx, models.TaskOutputSegment{
			SegmentID: name,
			TaskID:    "task-2",
			FilePath:  path,
			PartOrder: i,
		}); err != nil {
			t.Fatalf("upsert output segment: %v", err)
		}
	}

	uploader := &fakeUploader{}
	submitter := &fakeSubmitter{submitResult: remoteapi.SubmissionResult{BVID: "BV2", AID: 7}}
	q := newQueue(repo, uploader, submitter)

	if err := q.uploadTask(ctx, task); err != nil {
		t.Fatalf("uploadTask: %v", err)
	}

	if len(submitter.submittedParts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(submitter.submittedParts))
	}
	for i, part := range submitter.submittedParts {
		want := "P" + string(rune('1'+i))
		if part.Title != want {
			t.Fatalf("part[%d].Title = %q, want %q", i, part.Title, want)
		}
	}
}

func TestUploadTaskFailsWithoutTags(t *testing.T) {
	ctx := context.Background()
	task := models.SubmissionTask{TaskID: "task-3", Status: models.TaskStatusWaitUpload}
	repo := newRepoWithTask(t, task)
	q := newQueue(repo, &fakeUploader{}, &fakeSubmitter{})

	if err := q.uploadTask(ctx, task); err == nil {
		t.Fatal("expected error for empty tags")
	}
	got, _ := repo.GetTask(ctx, "task-3")
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func TestUploadTaskUpdateResolvesAIDWhenMissing(t *testing.T) {
	ctx := context.Background()
	task := models.SubmissionTask{
		TaskID:           "task-4",
		Title:            "update me",
		Tags:             []string{"t"},
		RemoteIdentifier: "BV4",
		Status:           models.TaskStatusWaitUpload,
	}
	repo := newRepoWithTask(t, task)
	if _, err := repo.CreateWorkflowInstance(ctx, models.WorkflowInstance{
		ID:           "wf-4",
		TaskID:       "task-4",
		WorkflowType: models.WorkflowTypeUpdate,
		Status:       models.WorkflowStatusRunning,
	}); err != nil {
		t.Fatalf("create workflow instance: %v", err)
	}
	dir := t.TempDir()
	segmentPath := filepath.Join(dir, "segment.mp4")
	if err := os.WriteFile(segmentPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write segment file: %v", err)
	}
	if _, err := repo.UpsertOutputSegment(ctx, models.TaskOutputSegment{
		SegmentID: "seg-4",
		TaskID:    "task-4",
		FilePath:  segmentPath,
		PartOrder: 1,
	}); err != nil {
		t.Fatalf("upsert output segment: %v", err)
	}

	submitter := &fakeSubmitter{fetchAID: 99}
	q := newQueue(repo, &fakeUploader{}, submitter)

	if err := q.uploadTask(ctx, task); err != nil {
		t.Fatalf("uploadTask: %v", err)
	}
	got, _ := repo.GetTask(ctx, "task-4")
	if got.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.RemoteAID != 99 {
		t.Fatalf("RemoteAID = %d, want 99", got.RemoteAID)
	}
}

func TestPickOldestWaitingOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	base := time.Now()
	clockCalls := 0
	// "zzz" sorts first alphabetically but is created second (later
	// CreatedAt); pickOldestWaiting must still return "aaa" by time, not
	// by the in-memory backend's id ordering.
	times := []time.Time{base.Add(time.Minute), base}
	repo, err := store.NewMemoryRepository(store.WithClock(func() time.Time {
		ts := times[clockCalls]
		clockCalls++
		return ts
	}))
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	if _, err := repo.CreateTask(ctx, models.SubmissionTask{TaskID: "zzz", Status: models.TaskStatusWaitUpload}); err != nil {
		t.Fatalf("create task zzz: %v", err)
	}
	if _, err := repo.CreateTask(ctx, models.SubmissionTask{TaskID: "aaa", Status: models.TaskStatusWaitUpload}); err != nil {
		t.Fatalf("create task aaa: %v", err)
	}

	q := newQueue(repo, &fakeUploader{}, &fakeSubmitter{})
	picked, ok, err := q.pickOldestWaiting(ctx)
	if err != nil {
		t.Fatalf("pickOldestWaiting: %v", err)
	}
	if !ok {
		t.Fatal("expected a waiting task")
	}
	if picked.TaskID != "aaa" {
		t.Fatalf("picked = %s, want aaa", picked.TaskID)
	}
}

func TestEditCacheClearByTask(t *testing.T) {
	cache := NewEditCache()
	cache.Upsert(models.TaskOutputSegment{SegmentID: "s1", TaskID: "t1"})
	cache.Upsert(models.TaskOutputSegment{SegmentID: "s2", TaskID: "t1"})
	cache.Upsert(models.TaskOutputSegment{SegmentID: "s3", TaskID: "t2"})

	cache.ClearByTask("t1")

	if _, ok := cache.Get("s1"); ok {
		t.Fatal("s1 should have been cleared")
	}
	if _, ok := cache.Get("s3"); !ok {
		t.Fatal("s3 belongs to a different task and should remain")
	}
}
