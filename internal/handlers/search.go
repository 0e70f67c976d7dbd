package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/search"
)

// SearchHandler handles HTTP requests for retrieval.
type SearchHandler struct {
	facade *search.Facade
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(facade *search.Facade) *SearchHandler {
	return &SearchHandler{facade: facade}
}

// SearchResult represents one ranked search hit.
type SearchResult struct {
	Thought ThoughtResponse `json:"thought"`
	Score   float64         `json:"score"`
}

// SearchResponse represents the search response payload.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Search handles GET /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, offset := pageParams(r)

	results, err := h.facade.Search(r.Context(), query, limit, offset)
	if err != nil {
		handleError(w, r, err, "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: searchResults(results)})
}

// Similar handles GET /api/thoughts/{id}/similar.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := pageParams(r)

	results, err := h.facade.FindSimilar(r.Context(), id, limit)
	if err != nil {
		handleError(w, r, err, "Failed to find similar thoughts")
		return
	}
	writeJSON(w, http.StatusOK, searchResults(results))
}

func searchResults(results []search.Result) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, SearchResult{Thought: thoughtResponse(res.Thought), Score: res.Score})
	}
	return out
}
