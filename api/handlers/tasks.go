package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/orchestrator"
	"github.com/BaSui01/snowgate/types"
)

// TaskHandler serves the submit/poll/cancel protocol.
type TaskHandler struct {
	manager *orchestrator.Manager
	logger  *zap.Logger
}

// NewTaskHandler creates the task handler.
func NewTaskHandler(manager *orchestrator.Manager, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{
		manager: manager,
		logger:  logger.With(zap.String("component", "task_handler")),
	}
}

// SubmitRequest is the task submission payload.
type SubmitRequest struct {
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline,omitempty"`
}

// SubmitResponse returns the correlation id for polling.
type SubmitResponse struct {
	TaskID string          `json:"task_id"`
	State  types.TaskState `json:"state"`
}

// PollResponse is the poll payload: the current state plus, once
// terminal, the aggregate result.
type PollResponse struct {
	TaskID   string                   `json:"task_id"`
	State    types.TaskState          `json:"state"`
	Response *types.AggregateResponse `json:"response,omitempty"`
}

// HandleSubmit handles POST /api/v1/tasks. The caller's verified
// identity is taken from the request context, where the auth middleware
// put it.
func (h *TaskHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "malformed request body", h.logger)
		return
	}

	id, _ := identity.FromContext(r.Context())
	taskID, err := h.manager.Submit(r.Context(), req.Description, id, req.Deadline)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteStatus(w, http.StatusAccepted, SubmitResponse{
		TaskID: taskID,
		State:  types.StatePending,
	})
}

// HandlePoll handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.manager.Poll(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, PollResponse{
		TaskID:   rec.TaskID,
		State:    rec.State,
		Response: rec.Response,
	})
}

// HandleCancel handles DELETE /api/v1/tasks/{id}.
func (h *TaskHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Cancel(r.Context(), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"task_id": id, "state": string(types.StateCanceled)})
}
