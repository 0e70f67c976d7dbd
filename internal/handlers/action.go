package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/storage"
)

// ActionHandler handles HTTP requests for action items.
type ActionHandler struct {
	actions storage.ActionStore
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(actions storage.ActionStore) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// ListOpen handles GET /api/actions. Only incomplete actions are
// returned, highest priority first.
func (h *ActionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)
	actions, err := h.actions.ListOpen(r.Context(), limit)
	if err != nil {
		handleError(w, r, err, "Failed to list actions")
		return
	}
	writeJSON(w, http.StatusOK, actionResponses(actions))
}

// Get handles GET /api/actions/{id}.
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	action, err := h.actions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err, "Failed to get action")
		return
	}
	writeJSON(w, http.StatusOK, actionResponses([]storage.ActionRecord{*action})[0])
}

// UpdateActionRequest represents the HTTP request payload for updating an
// action's completion state.
type UpdateActionRequest struct {
	Completed bool `json:"completed"`
}

// Update handles PATCH /api/actions/{id}.
func (h *ActionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.actions.SetCompleted(r.Context(), id, req.Completed); err != nil {
		handleError(w, r, err, "Failed to update action")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "completed": req.Completed})
}

// Delete handles DELETE /api/actions/{id}.
func (h *ActionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.actions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err, "Failed to delete action")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
