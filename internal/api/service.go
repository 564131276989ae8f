package api

import (
	"context"
	"log/slog"

	"reactioncut/internal/observability/metrics"
	"reactioncut/internal/remoteapi"
	"reactioncut/internal/store"
	"reactioncut/internal/transcoder"
	"reactioncut/internal/uploadqueue"
	"reactioncut/internal/workflow"
)

// Handler aggregates the HTTP endpoints exposed by the daemon along with
// the shared services they depend on, mirroring the teacher's
// internal/api.Handler aggregation: persistence, the workflow engine and
// its explicit commands, the upload queue's edit-segment staging area,
// and the remote submission client, instead of the teacher's session
// manager, chat gateway, and upload processor.
type Handler struct {
	Store       store.Repository
	Engine      *workflow.Engine
	Controller  *workflow.Controller
	Queue       *uploadqueue.Queue
	EditCache   *uploadqueue.EditCache
	Remote      *remoteapi.Client
	Transcoder  *transcoder.Runner
	Prober      workflow.Prober
	BaseDir     string
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// NewHandler wires the core daemon dependencies together.
func NewHandler(repo store.Repository, engine *workflow.Engine, controller *workflow.Controller, queue *uploadqueue.Queue) *Handler {
	return &Handler{
		Store:      repo,
		Engine:     engine,
		Controller: controller,
		Queue:      queue,
		EditCache:  queue.EditCache,
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// runWorkflow launches the Workflow Engine for taskID detached from the
// HTTP request that triggered it: Engine.Run blocks until the task
// reaches WAITING_UPLOAD, FAILED, or CANCELLED, which a request/response
// cycle cannot wait out. Mirrors original_source's
// tauri::async_runtime::spawn(run_submission_workflow(...)) fire-and-forget
// pattern and internal/recovery.Sweeper.relaunch's shape.
func (h *Handler) runWorkflow(taskID string) {
	if h.Engine == nil {
		return
	}
	go func() {
		if err := h.Engine.Run(context.Background(), taskID); err != nil {
			h.logger().Error("api: workflow run failed", "task_id", taskID, "error", err)
		}
	}()
}
