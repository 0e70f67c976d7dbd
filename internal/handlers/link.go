package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/storage"
)

// LinkHandler handles HTTP requests for thought links.
type LinkHandler struct {
	links storage.LinkStore
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(links storage.LinkStore) *LinkHandler {
	return &LinkHandler{links: links}
}

// CreateLinkRequest represents the HTTP request payload for a manual link.
type CreateLinkRequest struct {
	SourceThoughtID string  `json:"source_thought_id"`
	TargetThoughtID string  `json:"target_thought_id"`
	Relationship    string  `json:"relationship"`
	Strength        float64 `json:"strength"`
}

// Create handles POST /api/links.
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	link, err := h.links.Add(r.Context(), req.SourceThoughtID, req.TargetThoughtID, req.Relationship, req.Strength)
	if err != nil {
		handleError(w, r, err, "Failed to create link")
		return
	}
	writeJSON(w, http.StatusCreated, linkResponses([]storage.LinkRecord{*link})[0])
}

// Get handles GET /api/links/{id}.
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err, "Failed to get link")
		return
	}
	writeJSON(w, http.StatusOK, linkResponses([]storage.LinkRecord{*link})[0])
}

// UpdateLinkRequest represents the HTTP request payload for adjusting a
// link. Omitted fields are left unchanged.
type UpdateLinkRequest struct {
	Relationship *string  `json:"relationship"`
	Strength     *float64 `json:"strength"`
}

// Update handles PATCH /api/links/{id}.
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	link, err := h.links.Patch(r.Context(), chi.URLParam(r, "id"), storage.LinkPatch{
		Relationship: req.Relationship,
		Strength:     req.Strength,
	})
	if err != nil {
		handleError(w, r, err, "Failed to update link")
		return
	}
	writeJSON(w, http.StatusOK, linkResponses([]storage.LinkRecord{*link})[0])
}

// Delete handles DELETE /api/links/{id}.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.links.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err, "Failed to delete link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
