package api

import (
	"fmt"
	"net/http"
	"strings"
)

// Mux builds the daemon's HTTP surface: one route per §6 exposed
// operation, dispatched with the standard library's ServeMux plus
// trailing-path-segment parsing for operations that carry an id, the same
// style the teacher's internal/server.New uses instead of reaching for a
// third-party router.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/submissions", h.submissionsCollection)
	mux.HandleFunc("/submissions/", h.submissionByID)

	mux.HandleFunc("/edit/prepare/", h.editPrepareByID)
	mux.HandleFunc("/edit/add-segment", h.EditAddSegment)
	mux.HandleFunc("/edit/reupload-segment", h.EditReuploadSegment)
	mux.HandleFunc("/edit/upload-status/", h.editUploadStatusByID)
	mux.HandleFunc("/edit/upload-clear/", h.editUploadClearByID)
	mux.HandleFunc("/edit/submit/", h.editSubmitByID)

	mux.HandleFunc("/workflows/", h.workflowByID)

	mux.HandleFunc("/segments/", h.segmentByID)

	return mux
}

// submissionsCollection handles the operations without a path-carried id:
// create (POST) and list/list-by-status (GET, the latter via ?status=).
func (h *Handler) submissionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		if r.URL.Query().Get("status") != "" {
			h.ListByStatus(w, r)
			return
		}
		h.List(w, r)
	default:
		WriteRequestError(w, methodNotAllowed(r.Method))
	}
}

// submissionByID dispatches /submissions/{taskId}[/{action}] for every
// per-task operation spec §6 names.
func (h *Handler) submissionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/submissions/")
	if path == "" {
		WriteRequestError(w, badRequest("task id missing"))
		return
	}
	parts := strings.SplitN(path, "/", 2)
	taskID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.Detail(w, r, taskID)
		case http.MethodPut, http.MethodPatch:
			h.Update(w, r)
		case http.MethodDelete:
			h.Delete(w, r, taskID)
		default:
			WriteRequestError(w, methodNotAllowed(r.Method))
		}
	case "dir":
		h.TaskDir(w, r, taskID)
	case "execute":
		h.Execute(w, r, taskID)
	case "integrated-execute":
		h.IntegratedExecute(w, r, taskID)
	case "upload-execute":
		h.UploadExecute(w, r, taskID)
	case "repost":
		h.Repost(w, r, taskID)
	case "resegment":
		h.Resegment(w, r, taskID)
	default:
		WriteRequestError(w, notFound(fmt.Sprintf("unknown submission action %q", action)))
	}
}

func (h *Handler) editPrepareByID(w http.ResponseWriter, r *http.Request) {
	h.EditPrepare(w, r, strings.TrimPrefix(r.URL.Path, "/edit/prepare/"))
}

func (h *Handler) editUploadStatusByID(w http.ResponseWriter, r *http.Request) {
	h.EditUploadStatus(w, r, strings.TrimPrefix(r.URL.Path, "/edit/upload-status/"))
}

func (h *Handler) editUploadClearByID(w http.ResponseWriter, r *http.Request) {
	h.EditUploadClear(w, r, strings.TrimPrefix(r.URL.Path, "/edit/upload-clear/"))
}

func (h *Handler) editSubmitByID(w http.ResponseWriter, r *http.Request) {
	h.EditSubmit(w, r, strings.TrimPrefix(r.URL.Path, "/edit/submit/"))
}

// workflowByID dispatches /workflows/{taskId}[/pause|resume|cancel].
func (h *Handler) workflowByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/workflows/")
	if path == "" {
		WriteRequestError(w, badRequest("task id missing"))
		return
	}
	parts := strings.SplitN(path, "/", 2)
	taskID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		h.Status(w, r, taskID)
	case "pause":
		h.Pause(w, r, taskID)
	case "resume":
		h.Resume(w, r, taskID)
	case "cancel":
		h.Cancel(w, r, taskID)
	default:
		WriteRequestError(w, notFound(fmt.Sprintf("unknown workflow action %q", action)))
	}
}

// segmentByID dispatches /segments/{segmentId}/retry-upload, the one
// per-segment (rather than per-task) operation spec §6 names.
func (h *Handler) segmentByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/segments/")
	parts := strings.SplitN(path, "/", 2)
	segmentID := parts[0]
	if segmentID == "" || len(parts) < 2 || parts[1] != "retry-upload" {
		WriteRequestError(w, notFound("unknown segment route"))
		return
	}
	h.RetrySegmentUpload(w, r, segmentID)
}

func methodNotAllowed(method string) error {
	return RequestError{Status: http.StatusMethodNotAllowed, CodeVal: "method_not_allowed", Message: fmt.Sprintf("method %s not allowed", method)}
}
