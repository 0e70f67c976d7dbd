package importer

import (
	"context"
	"fmt"
	"log/slog"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/enrich"
	"mirza-mirror/internal/storage"
)

// Enricher runs the enrichment pipeline for a thought.
type Enricher interface {
	Enrich(ctx context.Context, thoughtID string) ([]enrich.StageOutcome, error)
}

// Result summarizes a completed import.
type Result struct {
	ConversationID string   `json:"conversation_id"`
	Source         string   `json:"source"`
	Format         string   `json:"format"`
	MessageCount   int      `json:"message_count"`
	ThoughtIDs     []string `json:"thought_ids"`
}

// Importer turns conversation exports into stored conversations whose
// messages are individual thoughts.
type Importer struct {
	normalizer    *Normalizer
	conversations storage.ConversationStore
	enricher      Enricher
	logger        *slog.Logger
}

func New(conversations storage.ConversationStore, enricher Enricher, logger *slog.Logger) *Importer {
	return &Importer{
		normalizer:    NewNormalizer(),
		conversations: conversations,
		enricher:      enricher,
		logger:        logger,
	}
}

// Import normalizes and persists one conversation export. The
// conversation, its thoughts, and the membership rows land in a single
// transaction; a parse failure writes nothing. Enrichment of the new
// thoughts runs in the background after the import commits.
func (imp *Importer) Import(ctx context.Context, data []byte, source, format, originalFile string) (*Result, error) {
	normalized, err := imp.normalizer.Normalize(data, source, format)
	if err != nil {
		return nil, err
	}

	conv := &storage.ConversationRecord{
		Source:       normalized.Source,
		Format:       normalized.Format,
		OriginalFile: originalFile,
		Metadata:     normalized.Metadata,
	}

	members := make([]storage.MemberThought, 0, len(normalized.Segments))
	for i, seg := range normalized.Segments {
		members = append(members, storage.MemberThought{
			Thought: storage.ThoughtRecord{
				Content: seg.Content,
				Source:  storage.SourceImport,
				Metadata: map[string]any{
					"role":          seg.Role,
					"import_source": normalized.Source,
					"import_format": normalized.Format,
				},
			},
			SegmentIndex: i,
			Role:         seg.Role,
		})
	}

	if err := imp.conversations.CreateWithThoughts(ctx, conv, members); err != nil {
		return nil, fmt.Errorf("failed to persist imported conversation: %w", err)
	}

	thoughtIDs := make([]string, len(members))
	for i, m := range members {
		thoughtIDs[i] = m.Thought.ID
	}

	imp.logger.InfoContext(ctx, "imported conversation",
		"conversation_id", conv.ID, "source", conv.Source, "format", conv.Format,
		"messages", len(members))

	if imp.enricher != nil {
		go imp.enrichImported(conv.ID, thoughtIDs)
	}

	return &Result{
		ConversationID: conv.ID,
		Source:         conv.Source,
		Format:         conv.Format,
		MessageCount:   len(members),
		ThoughtIDs:     thoughtIDs,
	}, nil
}

// enrichImported runs enrichment for each imported thought sequentially so
// a large transcript does not fan out into a goroutine per message.
func (imp *Importer) enrichImported(conversationID string, thoughtIDs []string) {
	ctx := contextutil.WithLogger(context.Background(), imp.logger)
	for _, id := range thoughtIDs {
		if _, err := imp.enricher.Enrich(ctx, id); err != nil {
			imp.logger.Warn("failed to enrich imported thought",
				"conversation_id", conversationID, "thought_id", id, "error", err)
		}
	}
}
