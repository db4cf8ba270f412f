package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/logger"
	"github.com/mvasquez/taskpool/internal/task"
)

// TaskHandler submits named, registry-resolved tasks to the Dispatcher.
// There is no task lookup or listing endpoint: the Dispatcher keeps no
// persisted task state, so a submission's only durable record is the
// lifecycle events it emits.
type TaskHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(d *dispatch.Dispatcher) *TaskHandler {
	return &TaskHandler{dispatcher: d}
}

// CallRequest describes a named task submission.
type CallRequest struct {
	Name      string `json:"name"`
	Args      []any  `json:"args,omitempty"`
	WaitMs    int64  `json:"wait_ms,omitempty"` // 0 means fire-and-forget
}

// CallResponse reports a submission's task-id and, if the task settled
// within WaitMs, its settled outcome.
type CallResponse struct {
	TaskID  uint64 `json:"task_id"`
	Status  string `json:"status"` // "submitted", "fulfilled", "rejected", "pending"
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "task name is required")
		return
	}

	taskID, future, err := h.dispatcher.Call(req.Name, req.Args...)
	if err != nil {
		logger.Error().Err(err).Str("name", req.Name).Msg("failed to submit task")
		h.respondSubmitError(w, err)
		return
	}

	logger.Info().Uint64("task_id", taskID).Str("name", req.Name).Msg("task submitted")

	if req.WaitMs <= 0 {
		h.respondJSON(w, http.StatusAccepted, CallResponse{TaskID: taskID, Status: "submitted"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.WaitMs)*time.Millisecond)
	defer cancel()

	value, err := future.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			h.respondJSON(w, http.StatusAccepted, CallResponse{TaskID: taskID, Status: "pending"})
			return
		}
		h.respondJSON(w, http.StatusOK, CallResponse{TaskID: taskID, Status: "rejected", Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, CallResponse{TaskID: taskID, Status: "fulfilled", Value: value})
}

func (h *TaskHandler) respondSubmitError(w http.ResponseWriter, err error) {
	if _, ok := err.(*task.SubmissionError); ok {
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.respondError(w, http.StatusInternalServerError, err.Error())
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
