package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/enrich"
	"mirza-mirror/internal/storage"
	"mirza-mirror/internal/vectorstore"
)

// Enricher runs the enrichment pipeline for a thought.
// This interface is defined from the service layer's perspective (consumer-first).
type Enricher interface {
	Enrich(ctx context.Context, thoughtID string) ([]enrich.StageOutcome, error)
}

// CaptureService persists newly captured thoughts and schedules their
// enrichment. Capture always succeeds or fails before enrichment starts:
// a thought is never lost because an enrichment step broke.
type CaptureService struct {
	thoughts    storage.ThoughtStore
	documents   storage.DocumentStore
	enricher    Enricher
	vectors     vectorstore.VectorStore
	collection  string
	audioDir    string
	documentDir string
	logger      *slog.Logger
}

func NewCaptureService(thoughts storage.ThoughtStore, documents storage.DocumentStore, enricher Enricher, vectors vectorstore.VectorStore, collection, audioDir, documentDir string, logger *slog.Logger) *CaptureService {
	return &CaptureService{
		thoughts:    thoughts,
		documents:   documents,
		enricher:    enricher,
		vectors:     vectors,
		collection:  collection,
		audioDir:    audioDir,
		documentDir: documentDir,
		logger:      logger,
	}
}

// CaptureText stores a typed note and schedules enrichment.
func (s *CaptureService) CaptureText(ctx context.Context, content string, metadata map[string]any) (*storage.ThoughtRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Message: "cannot be empty"}
	}

	t := &storage.ThoughtRecord{
		Content:  content,
		Source:   storage.SourceTextNote,
		Metadata: metadata,
	}
	if err := s.thoughts.Create(ctx, t); err != nil {
		return nil, WrapError(err, "failed to store thought")
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "captured text note", "thought_id", t.ID)
	s.enrichAsync(t.ID)
	return t, nil
}

// CaptureAudio stores a voice note's audio file and an empty thought for
// it. Transcription happens during enrichment.
func (s *CaptureService) CaptureAudio(ctx context.Context, filename string, audio []byte) (*storage.ThoughtRecord, error) {
	if len(audio) == 0 {
		return nil, &ValidationError{Field: "file", Message: "cannot be empty"}
	}

	path, err := s.saveUpload(s.audioDir, filename, audio)
	if err != nil {
		return nil, WrapError(err, "failed to save audio file")
	}

	t := &storage.ThoughtRecord{
		Source:    storage.SourceVoiceNote,
		AudioFile: path,
	}
	if err := s.thoughts.Create(ctx, t); err != nil {
		return nil, WrapError(err, "failed to store thought")
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "captured voice note",
		"thought_id", t.ID, "audio_file", path, "bytes", len(audio))
	s.enrichAsync(t.ID)
	return t, nil
}

// CaptureDocument stores an uploaded document, its document record, and an
// empty thought. Text extraction happens during enrichment.
func (s *CaptureService) CaptureDocument(ctx context.Context, filename, contentType string, data []byte) (*storage.ThoughtRecord, *storage.DocumentRecord, error) {
	if len(data) == 0 {
		return nil, nil, &ValidationError{Field: "file", Message: "cannot be empty"}
	}

	path, err := s.saveUpload(s.documentDir, filename, data)
	if err != nil {
		return nil, nil, WrapError(err, "failed to save document file")
	}

	t := &storage.ThoughtRecord{
		Source:       storage.SourceDocument,
		DocumentFile: path,
	}
	if err := s.thoughts.Create(ctx, t); err != nil {
		return nil, nil, WrapError(err, "failed to store thought")
	}

	doc := &storage.DocumentRecord{
		ThoughtID:   t.ID,
		FilePath:    path,
		ContentType: contentType,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, nil, WrapError(err, "failed to store document record")
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "captured document",
		"thought_id", t.ID, "document_id", doc.ID, "file", path, "bytes", len(data))
	s.enrichAsync(t.ID)
	return t, doc, nil
}

// Delete removes a thought and its vector point. The relational delete
// cascades tags, links, actions, and conversation memberships; the vector
// point has to go separately or it keeps surfacing as a similarity
// candidate for a thought that no longer exists.
func (s *CaptureService) Delete(ctx context.Context, id string) error {
	if err := s.thoughts.Delete(ctx, id); err != nil {
		return err
	}
	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, s.collection, []string{id}); err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to delete vector point",
				"thought_id", id, "error", err)
		}
	}
	return nil
}

// Enrich re-runs the enrichment pipeline for a thought synchronously and
// returns the per-stage outcomes.
func (s *CaptureService) Enrich(ctx context.Context, thoughtID string) ([]enrich.StageOutcome, error) {
	return s.enricher.Enrich(ctx, thoughtID)
}

// enrichAsync runs enrichment in the background. Capture responses do not
// wait on external AI services.
func (s *CaptureService) enrichAsync(thoughtID string) {
	if s.enricher == nil {
		return
	}
	go func() {
		ctx := contextutil.WithLogger(context.Background(), s.logger)
		if _, err := s.enricher.Enrich(ctx, thoughtID); err != nil {
			s.logger.Warn("background enrichment failed", "thought_id", thoughtID, "error", err)
		}
	}()
}

// saveUpload writes an upload under dir with a unique name, keeping the
// original extension.
func (s *CaptureService) saveUpload(dir, filename string, data []byte) (string, error) {
	ext := filepath.Ext(filename)
	path := filepath.Join(dir, uuid.New().String()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path, nil
}
