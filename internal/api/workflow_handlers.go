package api

import (
	"net/http"
)

// Status implements workflow status (spec §6): the active WorkflowInstance
// for a task, if any.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request, taskID string) {
	instance, err := h.Store.GetActiveWorkflowInstance(r.Context(), taskID)
	if err != nil {
		WriteRequestError(w, translateStoreErr(err, "no active workflow for task"))
		return
	}
	WriteJSON(w, http.StatusOK, instance)
}

// Pause implements workflow pause (spec §6), delegating to
// workflow.Controller.Pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := h.Controller.Pause(r.Context(), taskID); err != nil {
		WriteRequestError(w, translateStoreErr(err, "no active workflow for task"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "paused"})
}

// Resume implements workflow resume (spec §6), delegating to
// workflow.Controller.Resume and relaunching the Workflow Engine so the
// paused run continues from its persisted step.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := h.Controller.Resume(r.Context(), taskID); err != nil {
		WriteRequestError(w, translateStoreErr(err, "no active workflow for task"))
		return
	}
	h.runWorkflow(taskID)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "resumed"})
}

// Cancel implements workflow cancel (spec §6), delegating to
// workflow.Controller.Cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := h.Controller.Cancel(r.Context(), taskID); err != nil {
		WriteRequestError(w, translateStoreErr(err, "no active workflow for task"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "cancelled"})
}
