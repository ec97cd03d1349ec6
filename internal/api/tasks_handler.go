package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jspohr/tollbook/internal/task"
)

// tasksHandler groups task lifecycle HTTP handlers.
type tasksHandler struct {
	store *task.Store
}

func newTasksHandler(store *task.Store) *tasksHandler {
	return &tasksHandler{store: store}
}

// CreateTask handles POST /api/v1/tasks.
func (h *tasksHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var input task.CreateTaskInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if strings.TrimSpace(input.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "name is required")
		return
	}

	t, err := h.store.Create(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create task")
		return
	}

	auditLog(r, "create", "task", t.ID, "name", t.Name)

	writeJSON(w, http.StatusCreated, t)
}

// ListTasks handles GET /api/v1/tasks.
func (h *tasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// GetTask handles GET /api/v1/tasks/{taskID}.
func (h *tasksHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "task id is required")
		return
	}

	t, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
