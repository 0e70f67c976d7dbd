package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/storage"
)

// TagHandler handles HTTP requests for tags.
type TagHandler struct {
	tags storage.TagStore
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(tags storage.TagStore) *TagHandler {
	return &TagHandler{tags: tags}
}

// TagRecordResponse represents a tag in the list endpoint.
type TagRecordResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

// List handles GET /api/tags.
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.ListAll(r.Context())
	if err != nil {
		handleError(w, r, err, "Failed to list tags")
		return
	}

	out := make([]TagRecordResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagRecordResponse{
			ID:        t.ID,
			Name:      t.Name,
			Type:      t.Type,
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/tags/{id}.
func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	tag, err := h.tags.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err, "Failed to get tag")
		return
	}
	writeJSON(w, http.StatusOK, TagRecordResponse{
		ID:        tag.ID,
		Name:      tag.Name,
		Type:      tag.Type,
		CreatedAt: tag.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// UpdateTagRequest represents the HTTP request payload for renaming or
// retyping a tag. Omitted fields are left unchanged.
type UpdateTagRequest struct {
	Name *string `json:"name"`
	Type *string `json:"type"`
}

// Update handles PATCH /api/tags/{id}.
func (h *TagHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tag, err := h.tags.Patch(r.Context(), chi.URLParam(r, "id"), storage.TagPatch{Name: req.Name, Type: req.Type})
	if err != nil {
		handleError(w, r, err, "Failed to update tag")
		return
	}
	writeJSON(w, http.StatusOK, TagRecordResponse{
		ID:        tag.ID,
		Name:      tag.Name,
		Type:      tag.Type,
		CreatedAt: tag.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Delete handles DELETE /api/tags/{id}. Removing a tag detaches it from
// every thought that carried it.
func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tags.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err, "Failed to delete tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
