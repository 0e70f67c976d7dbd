package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// Create inserts a new document record.
	Create(ctx context.Context, doc *DocumentRecord) error
	// Get returns a document by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*DocumentRecord, error)
	// GetByThought returns the document produced by a thought's capture.
	GetByThought(ctx context.Context, thoughtID string) (*DocumentRecord, error)
	// AttachParsed stores the extracted content and structured
	// representation produced by the document parsing step.
	AttachParsed(ctx context.Context, id, content, structured string) error
	// Delete removes a document. The originating thought is untouched.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Create inserts a new document record.
func (r *DocumentRepo) Create(ctx context.Context, doc *DocumentRecord) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (id, thought_id, file_path, content_type, content, structured, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, nullable(doc.ThoughtID), doc.FilePath, doc.ContentType,
		nullable(doc.Content), nullable(doc.Structured), meta,
		formatSQLiteTime(now), formatSQLiteTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Get returns a document by ID.
func (r *DocumentRepo) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, thought_id, file_path, content_type, content, structured, metadata, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	return scanDocumentRow(row)
}

// GetByThought returns the document produced by a thought's capture.
func (r *DocumentRepo) GetByThought(ctx context.Context, thoughtID string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, thought_id, file_path, content_type, content, structured, metadata, created_at, updated_at
		 FROM documents WHERE thought_id = ? ORDER BY created_at DESC LIMIT 1`, thoughtID)
	return scanDocumentRow(row)
}

// AttachParsed stores the parsing step's output on a document.
func (r *DocumentRepo) AttachParsed(ctx context.Context, id, content, structured string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET content = ?, structured = ?, updated_at = ? WHERE id = ?",
		nullable(content), nullable(structured), formatSQLiteTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document. Ownership is by reference: the thought stays.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocumentRow(row *sql.Row) (*DocumentRecord, error) {
	var doc DocumentRecord
	var thoughtID, content, structured, meta sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&doc.ID, &thoughtID, &doc.FilePath, &doc.ContentType, &content, &structured, &meta, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc.ThoughtID = thoughtID.String
	doc.Content = content.String
	doc.Structured = structured.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode document metadata: %w", err)
		}
	}
	if doc.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}
