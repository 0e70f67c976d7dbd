package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/importer"
	"mirza-mirror/internal/storage"
)

// ImportHandler handles HTTP requests for conversation imports.
type ImportHandler struct {
	importer      *importer.Importer
	conversations storage.ConversationStore
	thoughts      storage.ThoughtStore
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(imp *importer.Importer, conversations storage.ConversationStore, thoughts storage.ThoughtStore) *ImportHandler {
	return &ImportHandler{importer: imp, conversations: conversations, thoughts: thoughts}
}

// Import handles POST /api/import. The multipart form carries the export
// file plus source and format fields.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	filename, _, data, ok := readUpload(w, r)
	if !ok {
		return
	}
	source := r.FormValue("source")
	format := r.FormValue("format")

	result, err := h.importer.Import(r.Context(), data, source, format, filename)
	if err != nil {
		handleError(w, r, err, "Failed to import conversation")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Sources handles GET /api/import/sources.
func (h *ImportHandler) Sources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": importer.SupportedSources()})
}

// Formats handles GET /api/import/formats.
func (h *ImportHandler) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"formats": importer.SupportedFormats()})
}

// ConversationResponse represents an imported conversation.
type ConversationResponse struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Format       string         `json:"format"`
	OriginalFile string         `json:"original_file,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ImportedAt   string         `json:"imported_at"`

	Messages []ConversationMessage `json:"messages,omitempty"`
}

// ConversationMessage represents one message of a conversation, in
// transcript order.
type ConversationMessage struct {
	SegmentIndex int             `json:"segment_index"`
	Role         string          `json:"role"`
	Thought      ThoughtResponse `json:"thought"`
}

func conversationResponse(c *storage.ConversationRecord) ConversationResponse {
	return ConversationResponse{
		ID:           c.ID,
		Source:       c.Source,
		Format:       c.Format,
		OriginalFile: c.OriginalFile,
		Metadata:     c.Metadata,
		ImportedAt:   c.ImportedAt.UTC().Format(time.RFC3339),
	}
}

// ListConversations handles GET /api/conversations.
func (h *ImportHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)
	conversations, err := h.conversations.List(r.Context(), limit)
	if err != nil {
		handleError(w, r, err, "Failed to list conversations")
		return
	}

	out := make([]ConversationResponse, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, conversationResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetConversation handles GET /api/conversations/{id}. The response
// carries the member thoughts in transcript order.
func (h *ImportHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	conv, err := h.conversations.Get(ctx, id)
	if err != nil {
		handleError(w, r, err, "Failed to load conversation")
		return
	}
	members, err := h.conversations.Members(ctx, id)
	if err != nil {
		handleError(w, r, err, "Failed to load conversation messages")
		return
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ThoughtID
	}
	thoughts, err := h.thoughts.ListByIDs(ctx, ids)
	if err != nil {
		handleError(w, r, err, "Failed to load conversation thoughts")
		return
	}
	byID := make(map[string]*storage.ThoughtRecord, len(thoughts))
	for _, t := range thoughts {
		byID[t.ID] = t
	}

	resp := conversationResponse(conv)
	for _, m := range members {
		t, ok := byID[m.ThoughtID]
		if !ok {
			continue
		}
		resp.Messages = append(resp.Messages, ConversationMessage{
			SegmentIndex: m.SegmentIndex,
			Role:         m.Role,
			Thought:      thoughtResponse(t),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteConversation handles DELETE /api/conversations/{id}. The member
// thoughts survive the delete.
func (h *ImportHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
