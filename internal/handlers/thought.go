package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/service"
	"mirza-mirror/internal/storage"
)

// maxUploadBytes caps audio and document uploads.
const maxUploadBytes = 64 << 20

// defaultListLimit bounds list endpoints when no limit is given.
const defaultListLimit = 50

// ThoughtHandler handles HTTP requests for thoughts.
type ThoughtHandler struct {
	capture  *service.CaptureService
	thoughts storage.ThoughtStore
	tags     storage.TagStore
	links    storage.LinkStore
	actions  storage.ActionStore
}

// NewThoughtHandler creates a new ThoughtHandler.
func NewThoughtHandler(capture *service.CaptureService, thoughts storage.ThoughtStore, tags storage.TagStore, links storage.LinkStore, actions storage.ActionStore) *ThoughtHandler {
	return &ThoughtHandler{capture: capture, thoughts: thoughts, tags: tags, links: links, actions: actions}
}

// CreateTextRequest represents the HTTP request payload for a text note.
type CreateTextRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ThoughtResponse represents a thought in HTTP responses.
type ThoughtResponse struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Source       string         `json:"source"`
	AudioFile    string         `json:"audio_file,omitempty"`
	DocumentFile string         `json:"document_file,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`

	Tags    []TagResponse    `json:"tags,omitempty"`
	Links   []LinkResponse   `json:"links,omitempty"`
	Actions []ActionResponse `json:"actions,omitempty"`
}

// TagResponse represents a tag attached to a thought.
type TagResponse struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// LinkResponse represents a link between two thoughts.
type LinkResponse struct {
	ID              string  `json:"id"`
	SourceThoughtID string  `json:"source_thought_id"`
	TargetThoughtID string  `json:"target_thought_id"`
	Relationship    string  `json:"relationship"`
	Strength        float64 `json:"strength"`
	CreatedAt       string  `json:"created_at"`
}

// ActionResponse represents an extracted action item.
type ActionResponse struct {
	ID        string `json:"id"`
	ThoughtID string `json:"thought_id"`
	Content   string `json:"content"`
	Priority  string `json:"priority"`
	DueDate   string `json:"due_date,omitempty"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"`
}

func thoughtResponse(t *storage.ThoughtRecord) ThoughtResponse {
	return ThoughtResponse{
		ID:           t.ID,
		Content:      t.Content,
		Source:       t.Source,
		AudioFile:    t.AudioFile,
		DocumentFile: t.DocumentFile,
		Summary:      t.Summary,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func tagResponses(tags []storage.ThoughtTag) []TagResponse {
	out := make([]TagResponse, 0, len(tags))
	for _, tt := range tags {
		out = append(out, TagResponse{Name: tt.Tag.Name, Type: tt.Tag.Type, Confidence: tt.Confidence})
	}
	return out
}

func linkResponses(links []storage.LinkRecord) []LinkResponse {
	out := make([]LinkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, LinkResponse{
			ID:              l.ID,
			SourceThoughtID: l.SourceThoughtID,
			TargetThoughtID: l.TargetThoughtID,
			Relationship:    l.Relationship,
			Strength:        l.Strength,
			CreatedAt:       l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func actionResponses(actions []storage.ActionRecord) []ActionResponse {
	out := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		resp := ActionResponse{
			ID:        a.ID,
			ThoughtID: a.ThoughtID,
			Content:   a.Content,
			Priority:  a.Priority,
			Completed: a.Completed,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.DueDate != nil {
			resp.DueDate = a.DueDate.UTC().Format("2006-01-02")
		}
		out = append(out, resp)
	}
	return out
}

// CreateText handles POST /api/thoughts.
func (h *ThoughtHandler) CreateText(w http.ResponseWriter, r *http.Request) {
	var req CreateTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := h.capture.CaptureText(r.Context(), req.Content, req.Metadata)
	if err != nil {
		handleError(w, r, err, "Failed to capture thought")
		return
	}
	writeJSON(w, http.StatusCreated, thoughtResponse(t))
}

// CreateAudio handles POST /api/thoughts/audio.
func (h *ThoughtHandler) CreateAudio(w http.ResponseWriter, r *http.Request) {
	filename, _, data, ok := readUpload(w, r)
	if !ok {
		return
	}

	t, err := h.capture.CaptureAudio(r.Context(), filename, data)
	if err != nil {
		handleError(w, r, err, "Failed to capture voice note")
		return
	}
	writeJSON(w, http.StatusCreated, thoughtResponse(t))
}

// CreateDocument handles POST /api/thoughts/document.
func (h *ThoughtHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	filename, contentType, data, ok := readUpload(w, r)
	if !ok {
		return
	}

	t, doc, err := h.capture.CaptureDocument(r.Context(), filename, contentType, data)
	if err != nil {
		handleError(w, r, err, "Failed to capture document")
		return
	}

	resp := thoughtResponse(t)
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	resp.Metadata["document_id"] = doc.ID
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /api/thoughts/{id}. The response carries the thought's
// tags, links, and actions.
func (h *ThoughtHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	t, err := h.thoughts.Get(ctx, id)
	if err != nil {
		handleError(w, r, err, "Failed to load thought")
		return
	}

	resp := thoughtResponse(t)
	if tags, err := h.tags.ListForThought(ctx, id); err == nil {
		resp.Tags = tagResponses(tags)
	}
	if links, err := h.links.ListForThought(ctx, id); err == nil {
		resp.Links = linkResponses(links)
	}
	if actions, err := h.actions.ListForThought(ctx, id); err == nil {
		resp.Actions = actionResponses(actions)
	}
	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /api/thoughts. An optional tag query parameter filters
// by tag name.
func (h *ThoughtHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pageParams(r)

	var (
		thoughts []*storage.ThoughtRecord
		err      error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		thoughts, err = h.thoughts.ListByTag(ctx, tag, limit)
	} else {
		thoughts, err = h.thoughts.ListRecent(ctx, limit, offset)
	}
	if err != nil {
		handleError(w, r, err, "Failed to list thoughts")
		return
	}

	out := make([]ThoughtResponse, 0, len(thoughts))
	for _, t := range thoughts {
		out = append(out, thoughtResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// PatchRequest represents the HTTP request payload for updating a thought.
type PatchRequest struct {
	Content  *string        `json:"content,omitempty"`
	Summary  *string        `json:"summary,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Patch handles PATCH /api/thoughts/{id}.
func (h *ThoughtHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := h.thoughts.Patch(r.Context(), id, storage.ThoughtPatch{
		Content:  req.Content,
		Summary:  req.Summary,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(w, r, err, "Failed to update thought")
		return
	}
	writeJSON(w, http.StatusOK, thoughtResponse(t))
}

// Delete handles DELETE /api/thoughts/{id}. The capture service removes
// the thought's vector point along with the row.
func (h *ThoughtHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.capture.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err, "Failed to delete thought")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Links handles GET /api/thoughts/{id}/links.
func (h *ThoughtHandler) Links(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.thoughts.Get(ctx, id); err != nil {
		handleError(w, r, err, "Failed to load thought")
		return
	}
	links, err := h.links.ListForThought(ctx, id)
	if err != nil {
		handleError(w, r, err, "Failed to list links")
		return
	}
	writeJSON(w, http.StatusOK, linkResponses(links))
}

// Enrich handles POST /api/thoughts/{id}/enrich. It re-runs the pipeline
// synchronously and reports the per-stage outcomes.
func (h *ThoughtHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	outcomes, err := h.capture.Enrich(ctx, id)
	if err != nil {
		handleError(w, r, err, "Failed to enrich thought")
		return
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "manual enrichment requested", "thought_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"thought_id": id, "stages": outcomes})
}

// readUpload extracts the multipart "file" field along with the part's
// declared content type. It writes the error response itself when the
// upload is unusable.
func readUpload(w http.ResponseWriter, r *http.Request) (filename, contentType string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file upload")
		return "", "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file upload")
		return "", "", nil, false
	}
	return header.Filename, header.Header.Get("Content-Type"), data, true
}

// pageParams parses limit and offset query parameters with defaults.
func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
