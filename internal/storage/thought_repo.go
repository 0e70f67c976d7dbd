package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ThoughtStore defines the interface for thought storage operations.
type ThoughtStore interface {
	// Create validates and inserts a new thought. If the record has no ID,
	// a UUID is assigned. Returns ErrInvalidInput for empty content or an
	// unknown source.
	Create(ctx context.Context, thought *ThoughtRecord) error
	// Get returns a thought by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*ThoughtRecord, error)
	// Patch applies a merge-patch to a thought, always refreshing
	// updated_at, and returns the updated record. Returns ErrNotFound if
	// absent.
	Patch(ctx context.Context, id string, patch ThoughtPatch) (*ThoughtRecord, error)
	// ListRecent returns thoughts ordered by created_at descending.
	ListRecent(ctx context.Context, limit, offset int) ([]*ThoughtRecord, error)
	// ListByIDs returns the thoughts for the given IDs. Missing IDs are
	// silently dropped from the result.
	ListByIDs(ctx context.Context, ids []string) ([]*ThoughtRecord, error)
	// ListByTag returns thoughts carrying the named tag, newest first.
	ListByTag(ctx context.Context, tagName string, limit int) ([]*ThoughtRecord, error)
	// SearchContent returns thoughts whose content or summary contains
	// the query substring (case-insensitive), newest first.
	SearchContent(ctx context.Context, query string, limit int) ([]*ThoughtRecord, error)
	// Delete removes a thought and cascades to its tag associations,
	// links (both directions), actions, and conversation membership.
	Delete(ctx context.Context, id string) error
}

// ThoughtPatch describes a merge-patch on a thought. Nil fields are left
// unchanged. Metadata keys are merged into the existing metadata map.
type ThoughtPatch struct {
	Content      *string
	AudioFile    *string
	DocumentFile *string
	Summary      *string
	Metadata     map[string]any
}

// ThoughtRepo provides methods for thought operations.
// It implements the ThoughtStore interface.
type ThoughtRepo struct {
	db *sql.DB
}

// NewThoughtRepo creates a new ThoughtRepo.
func NewThoughtRepo(db *sql.DB) *ThoughtRepo {
	return &ThoughtRepo{db: db}
}

// Create validates and inserts a new thought.
func (r *ThoughtRepo) Create(ctx context.Context, thought *ThoughtRecord) error {
	if strings.TrimSpace(thought.Content) == "" && thought.Source != SourceVoiceNote && thought.Source != SourceDocument {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidInput)
	}
	if !ValidSource(thought.Source) {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, thought.Source)
	}

	if thought.ID == "" {
		thought.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	thought.CreatedAt = now
	thought.UpdatedAt = now

	meta, err := marshalMetadata(thought.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO thoughts (id, content, source, audio_file, document_file, summary, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		thought.ID, thought.Content, thought.Source,
		nullable(thought.AudioFile), nullable(thought.DocumentFile), nullable(thought.Summary),
		meta, formatSQLiteTime(now), formatSQLiteTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert thought: %w", err)
	}
	return nil
}

// Get returns a thought by ID. Returns ErrNotFound if absent.
func (r *ThoughtRepo) Get(ctx context.Context, id string) (*ThoughtRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content, source, audio_file, document_file, summary, metadata, created_at, updated_at
		 FROM thoughts WHERE id = ?`, id)
	thought, err := scanThought(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query thought: %w", err)
	}
	return thought, nil
}

// Patch applies a merge-patch to a thought and returns the updated record.
func (r *ThoughtRepo) Patch(ctx context.Context, id string, patch ThoughtPatch) (*ThoughtRecord, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return nil, fmt.Errorf("%w: content must not be empty", ErrInvalidInput)
		}
		existing.Content = *patch.Content
	}
	if patch.AudioFile != nil {
		existing.AudioFile = *patch.AudioFile
	}
	if patch.DocumentFile != nil {
		existing.DocumentFile = *patch.DocumentFile
	}
	if patch.Summary != nil {
		existing.Summary = *patch.Summary
	}
	if len(patch.Metadata) > 0 {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			existing.Metadata[k] = v
		}
	}

	meta, err := marshalMetadata(existing.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE thoughts SET content = ?, audio_file = ?, document_file = ?, summary = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		existing.Content, nullable(existing.AudioFile), nullable(existing.DocumentFile),
		nullable(existing.Summary), meta, formatSQLiteTime(now), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update thought: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	// The stored timestamp has second resolution.
	existing.UpdatedAt = now.Truncate(time.Second)
	return existing, nil
}

// ListRecent returns thoughts ordered by created_at descending.
func (r *ThoughtRepo) ListRecent(ctx context.Context, limit, offset int) ([]*ThoughtRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, source, audio_file, document_file, summary, metadata, created_at, updated_at
		 FROM thoughts ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent thoughts: %w", err)
	}
	return collectThoughts(rows)
}

// ListByIDs returns the thoughts for the given IDs.
func (r *ThoughtRepo) ListByIDs(ctx context.Context, ids []string) ([]*ThoughtRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, source, audio_file, document_file, summary, metadata, created_at, updated_at
		 FROM thoughts WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query thoughts by IDs: %w", err)
	}
	return collectThoughts(rows)
}

// ListByTag returns thoughts carrying the named tag, newest first.
func (r *ThoughtRepo) ListByTag(ctx context.Context, tagName string, limit int) ([]*ThoughtRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.content, t.source, t.audio_file, t.document_file, t.summary, t.metadata, t.created_at, t.updated_at
		 FROM thoughts t
		 JOIN thought_tags tt ON tt.thought_id = t.id
		 JOIN tags tg ON tg.id = tt.tag_id
		 WHERE tg.name = ?
		 ORDER BY t.created_at DESC, t.id LIMIT ?`, tagName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query thoughts by tag: %w", err)
	}
	return collectThoughts(rows)
}

// SearchContent returns thoughts whose content or summary contains the
// query substring (case-insensitive), newest first.
func (r *ThoughtRepo) SearchContent(ctx context.Context, query string, limit int) ([]*ThoughtRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, source, audio_file, document_file, summary, metadata, created_at, updated_at
		 FROM thoughts
		 WHERE LOWER(content) LIKE ? OR LOWER(IFNULL(summary, '')) LIKE ?
		 ORDER BY created_at DESC, id LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query thoughts by keyword: %w", err)
	}
	return collectThoughts(rows)
}

// Delete removes a thought and its dependent rows in a single transaction.
// The dependency graph is walked explicitly rather than relying on FK
// trigger behavior: tag associations, links in both directions, actions,
// and conversation membership go first, then the thought row itself.
func (r *ThoughtRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM thoughts WHERE id = ?", id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check thought existence: %w", err)
	}

	deletes := []string{
		"DELETE FROM thought_tags WHERE thought_id = ?",
		"DELETE FROM links WHERE source_thought_id = ? OR target_thought_id = ?",
		"DELETE FROM actions WHERE thought_id = ?",
		"DELETE FROM conversation_thoughts WHERE thought_id = ?",
		"DELETE FROM thoughts WHERE id = ?",
	}
	for _, stmt := range deletes {
		args := []any{id}
		if strings.Contains(stmt, "OR target_thought_id") {
			args = []any{id, id}
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to cascade delete thought: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanThought(s scanner) (*ThoughtRecord, error) {
	var t ThoughtRecord
	var audioFile, documentFile, summary, meta sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&t.ID, &t.Content, &t.Source, &audioFile, &documentFile, &summary, &meta, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	t.AudioFile = audioFile.String
	t.DocumentFile = documentFile.String
	t.Summary = summary.String

	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode thought metadata: %w", err)
		}
	}

	var err error
	if t.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectThoughts(rows *sql.Rows) ([]*ThoughtRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	var thoughts []*ThoughtRecord
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thought: %w", err)
		}
		thoughts = append(thoughts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return thoughts, nil
}

func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
