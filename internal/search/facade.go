// Package search implements keyword + semantic retrieval over thoughts.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/storage"
	"mirza-mirror/internal/vectorstore"
)

// Extra candidates fetched beyond limit+offset so pagination stays stable
// when keyword and vector candidate sets overlap only partially.
const candidateHeadroom = 20

// Embedder generates embeddings for texts.
// This interface is defined from the search layer's perspective.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ThoughtReader is the slice of thought storage the facade needs.
type ThoughtReader interface {
	Get(ctx context.Context, id string) (*storage.ThoughtRecord, error)
	ListByIDs(ctx context.Context, ids []string) ([]*storage.ThoughtRecord, error)
	SearchContent(ctx context.Context, query string, limit int) ([]*storage.ThoughtRecord, error)
}

// Result is one ranked search hit.
type Result struct {
	Thought *storage.ThoughtRecord
	Score   float64
}

// Facade combines relational keyword matching with vector-similarity
// ranking over the thought collection.
type Facade struct {
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	thoughts    ThoughtReader
}

// NewFacade creates a new retrieval facade.
func NewFacade(embedder Embedder, vectorStore vectorstore.VectorStore, collection string, thoughts ThoughtReader) *Facade {
	return &Facade{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		thoughts:    thoughts,
	}
}

// Search returns ranked thoughts for a free-text query.
// The blended score is vector similarity plus a bounded non-negative
// lexical bonus; ties break by recency, newest first. Results are ranked
// over the full candidate set before limit/offset are applied, so pages of
// the same query do not duplicate or skip rows.
func (f *Facade) Search(ctx context.Context, query string, limit, offset int) ([]Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	candidateCount := limit + offset + candidateHeadroom

	// Vector candidates. An embedding-service outage degrades search to
	// keyword-only rather than failing the request.
	vectorScores := make(map[string]float64)
	embeddings, err := f.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		logger.WarnContext(ctx, "query embedding failed, keyword-only search", "error", err)
	} else if len(embeddings) > 0 {
		hits, err := f.vectorStore.Search(ctx, f.collection, embeddings[0], candidateCount, nil)
		if err != nil {
			logger.WarnContext(ctx, "vector search failed, keyword-only search", "error", err)
		} else {
			for _, hit := range hits {
				vectorScores[hit.PointID] = float64(hit.Score)
			}
		}
	}

	// Keyword candidates from the relational store.
	keywordThoughts, err := f.thoughts.SearchContent(ctx, query, candidateCount)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}

	byID := make(map[string]*storage.ThoughtRecord, len(keywordThoughts)+len(vectorScores))
	for _, t := range keywordThoughts {
		byID[t.ID] = t
	}

	var missing []string
	for id := range vectorScores {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := f.thoughts.ListByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to load vector candidates: %w", err)
		}
		for _, t := range fetched {
			byID[t.ID] = t
		}
	}

	results := make([]Result, 0, len(byID))
	for _, t := range byID {
		score := vectorScores[t.ID] + lexicalScore(query, t.Content, t.Summary)
		results = append(results, Result{Thought: t, Score: score})
	}

	sortResults(results)

	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindSimilar returns the thoughts most semantically similar to the given
// thought, excluding the thought itself. Used by the link step to build
// its candidate set.
func (f *Facade) FindSimilar(ctx context.Context, thoughtID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	thought, err := f.thoughts.Get(ctx, thoughtID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(thought.Content) == "" {
		return nil, nil
	}

	embeddings, err := f.embedder.EmbedTexts(ctx, []string{thought.Content})
	if err != nil {
		return nil, fmt.Errorf("failed to embed thought: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for thought")
	}

	// Fetch one extra hit since the thought itself is usually the top match.
	hits, err := f.vectorStore.Search(ctx, f.collection, embeddings[0], limit+1, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	var ids []string
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		if hit.PointID == thoughtID {
			continue
		}
		ids = append(ids, hit.PointID)
		scores[hit.PointID] = float64(hit.Score)
	}

	thoughts, err := f.thoughts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load similar thoughts: %w", err)
	}

	results := make([]Result, 0, len(thoughts))
	for _, t := range thoughts {
		results = append(results, Result{Thought: t, Score: scores[t.ID]})
	}
	sortResults(results)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sortResults orders by score descending, then recency (updated_at, newest
// first), then ID for a stable total order.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Thought.UpdatedAt.Equal(results[j].Thought.UpdatedAt) {
			return results[i].Thought.UpdatedAt.After(results[j].Thought.UpdatedAt)
		}
		return results[i].Thought.ID < results[j].Thought.ID
	})
}
