package enrich

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/docling"
	"mirza-mirror/internal/storage"
)

// DocumentConverter parses an uploaded document into markdown text.
type DocumentConverter interface {
	Convert(ctx context.Context, filename, contentType string, data []byte) (*docling.ConvertResult, error)
}

// ParseDocumentStep extracts the text of a document-sourced thought and
// stores the parsed result on the document record.
type ParseDocumentStep struct {
	converter DocumentConverter
	documents storage.DocumentStore
	thoughts  storage.ThoughtStore
}

func NewParseDocumentStep(converter DocumentConverter, documents storage.DocumentStore, thoughts storage.ThoughtStore) *ParseDocumentStep {
	return &ParseDocumentStep{converter: converter, documents: documents, thoughts: thoughts}
}

func (s *ParseDocumentStep) Stage() Stage {
	return StageParseDocument
}

func (s *ParseDocumentStep) Applies(t *storage.ThoughtRecord) bool {
	return t.Source == storage.SourceDocument && !hasText(t)
}

func (s *ParseDocumentStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	doc, err := s.documents.GetByThought(ctx, t.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failed(StageParseDocument, fmt.Errorf("thought has no document record"))
		}
		return failed(StageParseDocument, err)
	}

	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return failed(StageParseDocument, fmt.Errorf("failed to read document file: %w", err))
	}

	contentType := mime.TypeByExtension(filepath.Ext(doc.FilePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := s.converter.Convert(ctx, filepath.Base(doc.FilePath), contentType, data)
	if err != nil {
		return failed(StageParseDocument, err)
	}

	if err := s.documents.AttachParsed(ctx, doc.ID, result.Content, result.Structured); err != nil {
		return failed(StageParseDocument, fmt.Errorf("failed to store parsed document: %w", err))
	}

	updated, err := s.thoughts.Patch(ctx, t.ID, storage.ThoughtPatch{Content: &result.Content})
	if err != nil {
		return failed(StageParseDocument, fmt.Errorf("failed to store document text: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "parsed document",
		"thought_id", t.ID, "document_id", doc.ID, "chars", len(result.Content))

	t.Content = updated.Content
	t.UpdatedAt = updated.UpdatedAt
	return nil
}
