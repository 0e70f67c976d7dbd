package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemberThought is one segment of a conversation import: the thought to
// create plus its position and speaker role.
type MemberThought struct {
	Thought      ThoughtRecord
	SegmentIndex int
	Role         string
}

// ConversationStore defines the interface for imported-conversation storage.
type ConversationStore interface {
	// CreateWithThoughts persists the conversation record, every member
	// thought, and every membership row in a single transaction: an
	// import either lands completely or not at all.
	CreateWithThoughts(ctx context.Context, conv *ConversationRecord, members []MemberThought) error
	// Get returns a conversation by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*ConversationRecord, error)
	// Members returns membership rows ordered by segment_index.
	Members(ctx context.Context, conversationID string) ([]ConversationMember, error)
	// List returns conversations, newest import first.
	List(ctx context.Context, limit int) ([]*ConversationRecord, error)
	// Delete removes a conversation and its membership rows. The member
	// thoughts themselves survive.
	Delete(ctx context.Context, id string) error
}

// ConversationRepo provides methods for imported-conversation operations.
// It implements the ConversationStore interface.
type ConversationRepo struct {
	db *sql.DB
}

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateWithThoughts persists an import batch atomically.
func (r *ConversationRepo) CreateWithThoughts(ctx context.Context, conv *ConversationRecord, members []MemberThought) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.ImportedAt = time.Now().UTC()

	meta, err := marshalMetadata(conv.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := formatSQLiteTime(conv.ImportedAt)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO imported_conversations (id, source, format, original_file, metadata, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Source, conv.Format, conv.OriginalFile, meta, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	for i := range members {
		m := &members[i]
		if m.Thought.ID == "" {
			m.Thought.ID = uuid.New().String()
		}
		m.Thought.CreatedAt = conv.ImportedAt
		m.Thought.UpdatedAt = conv.ImportedAt

		tMeta, err := marshalMetadata(m.Thought.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO thoughts (id, content, source, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.Thought.ID, m.Thought.Content, m.Thought.Source, tMeta, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert imported thought: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_thoughts (conversation_id, thought_id, segment_index, role, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			conv.ID, m.Thought.ID, m.SegmentIndex, m.Role, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// Get returns a conversation by ID.
func (r *ConversationRepo) Get(ctx context.Context, id string) (*ConversationRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, source, format, original_file, metadata, imported_at
		 FROM imported_conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return conv, nil
}

// Members returns membership rows ordered by segment_index.
func (r *ConversationRepo) Members(ctx context.Context, conversationID string) ([]ConversationMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT conversation_id, thought_id, segment_index, role, created_at
		 FROM conversation_thoughts WHERE conversation_id = ?
		 ORDER BY segment_index`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation members: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var members []ConversationMember
	for rows.Next() {
		var m ConversationMember
		var createdAt string
		if err := rows.Scan(&m.ConversationID, &m.ThoughtID, &m.SegmentIndex, &m.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation member: %w", err)
		}
		if m.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return members, nil
}

// List returns conversations, newest import first.
func (r *ConversationRepo) List(ctx context.Context, limit int) ([]*ConversationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, format, original_file, metadata, imported_at
		 FROM imported_conversations ORDER BY imported_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var convs []*ConversationRecord
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return convs, nil
}

// Delete removes a conversation and its membership rows in one transaction.
// Member thoughts are left in place; they remain standalone thoughts.
func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_thoughts WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete conversation membership: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM imported_conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation delete: %w", err)
	}
	return nil
}

func scanConversation(s scanner) (*ConversationRecord, error) {
	var conv ConversationRecord
	var meta sql.NullString
	var importedAt string
	if err := s.Scan(&conv.ID, &conv.Source, &conv.Format, &conv.OriginalFile, &meta, &importedAt); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode conversation metadata: %w", err)
		}
	}
	var err error
	if conv.ImportedAt, err = parseSQLiteTime(importedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}
