package enrich

import (
	"context"
	"fmt"
	"time"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/storage"
	"mirza-mirror/internal/vectorstore"
)

// EmbedStep embeds the thought's text and upserts it into the vector
// store. The point ID is the thought ID, so re-running replaces the
// previous vector.
type EmbedStep struct {
	embedder   Embedder
	vectors    vectorstore.VectorStore
	collection string
	thoughts   storage.ThoughtStore
}

func NewEmbedStep(embedder Embedder, vectors vectorstore.VectorStore, collection string, thoughts storage.ThoughtStore) *EmbedStep {
	return &EmbedStep{embedder: embedder, vectors: vectors, collection: collection, thoughts: thoughts}
}

func (s *EmbedStep) Stage() Stage {
	return StageEmbed
}

func (s *EmbedStep) Applies(t *storage.ThoughtRecord) bool {
	return hasText(t)
}

func (s *EmbedStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	vecs, err := s.embedder.EmbedTexts(ctx, []string{t.Content})
	if err != nil {
		return failed(StageEmbed, err)
	}

	point := vectorstore.Point{
		ID:  t.ID,
		Vec: vecs[0],
		Meta: map[string]any{
			"source":  t.Source,
			"created": t.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	if err := s.vectors.Upsert(ctx, s.collection, []vectorstore.Point{point}); err != nil {
		return failed(StageEmbed, fmt.Errorf("failed to upsert vector: %w", err))
	}

	updated, err := s.thoughts.Patch(ctx, t.ID, storage.ThoughtPatch{
		Metadata: map[string]any{"embedding_id": t.ID},
	})
	if err != nil {
		return failed(StageEmbed, fmt.Errorf("failed to record embedding: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "embedded thought", "thought_id", t.ID)

	t.Metadata = updated.Metadata
	t.UpdatedAt = updated.UpdatedAt
	return nil
}
