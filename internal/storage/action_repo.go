package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionInput is one extracted task, as produced by the action step.
type ActionInput struct {
	Content  string
	Priority string
	DueDate  *time.Time
}

// ActionStore defines the interface for action storage operations.
type ActionStore interface {
	// Add records a task extracted from a thought. Returns ErrNotFound
	// when the owning thought is missing.
	Add(ctx context.Context, thoughtID string, in ActionInput) (*ActionRecord, error)
	// AddMany records a batch of actions for one thought in a single
	// transaction.
	AddMany(ctx context.Context, thoughtID string, actions []ActionInput) error
	// Get returns an action by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*ActionRecord, error)
	// ListForThought returns actions for a thought, oldest first.
	ListForThought(ctx context.Context, thoughtID string) ([]ActionRecord, error)
	// ListOpen returns incomplete actions across all thoughts, by
	// priority then age.
	ListOpen(ctx context.Context, limit int) ([]ActionRecord, error)
	// SetCompleted flips the completion flag. Returns ErrNotFound if absent.
	SetCompleted(ctx context.Context, id string, completed bool) error
	// Delete removes an action by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// ActionRepo provides methods for action operations.
// It implements the ActionStore interface.
type ActionRepo struct {
	db *sql.DB
}

// NewActionRepo creates a new ActionRepo.
func NewActionRepo(db *sql.DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// Add records a task extracted from a thought.
func (r *ActionRepo) Add(ctx context.Context, thoughtID string, in ActionInput) (*ActionRecord, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: action content must not be empty", ErrInvalidInput)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !ValidPriority(in.Priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}

	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM thoughts WHERE id = ?", thoughtID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check thought existence: %w", err)
	}

	now := time.Now().UTC()
	action := &ActionRecord{
		ID:        uuid.New().String(),
		ThoughtID: thoughtID,
		Content:   in.Content,
		Priority:  in.Priority,
		DueDate:   in.DueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var due sql.NullString
	if in.DueDate != nil {
		due = sql.NullString{String: formatSQLiteTime(*in.DueDate), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO actions (id, thought_id, content, priority, due_date, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		action.ID, thoughtID, action.Content, action.Priority, due,
		formatSQLiteTime(now), formatSQLiteTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert action: %w", err)
	}
	return action, nil
}

// AddMany records a batch of actions for one thought in a single transaction.
func (r *ActionRepo) AddMany(ctx context.Context, thoughtID string, actions []ActionInput) error {
	if len(actions) == 0 {
		return nil
	}

	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM thoughts WHERE id = ?", thoughtID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check thought existence: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := formatSQLiteTime(time.Now().UTC())
	for _, in := range actions {
		if strings.TrimSpace(in.Content) == "" {
			continue
		}
		priority := in.Priority
		if !ValidPriority(priority) {
			priority = PriorityMedium
		}
		var due sql.NullString
		if in.DueDate != nil {
			due = sql.NullString{String: formatSQLiteTime(*in.DueDate), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO actions (id, thought_id, content, priority, due_date, completed, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			uuid.New().String(), thoughtID, in.Content, priority, due, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit actions: %w", err)
	}
	return nil
}

// Get returns an action by ID.
func (r *ActionRepo) Get(ctx context.Context, id string) (*ActionRecord, error) {
	actions, err := r.list(ctx,
		`SELECT id, thought_id, content, priority, due_date, completed, created_at, updated_at
		 FROM actions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, ErrNotFound
	}
	return &actions[0], nil
}

// ListForThought returns actions for a thought, oldest first.
func (r *ActionRepo) ListForThought(ctx context.Context, thoughtID string) ([]ActionRecord, error) {
	return r.list(ctx,
		`SELECT id, thought_id, content, priority, due_date, completed, created_at, updated_at
		 FROM actions WHERE thought_id = ? ORDER BY created_at, id`, thoughtID)
}

// ListOpen returns incomplete actions, highest priority first, then oldest.
func (r *ActionRepo) ListOpen(ctx context.Context, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx,
		`SELECT id, thought_id, content, priority, due_date, completed, created_at, updated_at
		 FROM actions WHERE completed = 0
		 ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at
		 LIMIT ?`, limit)
}

// SetCompleted flips the completion flag.
func (r *ActionRepo) SetCompleted(ctx context.Context, id string, completed bool) error {
	val := 0
	if completed {
		val = 1
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE actions SET completed = ?, updated_at = ? WHERE id = ?",
		val, formatSQLiteTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an action by ID.
func (r *ActionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM actions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ActionRepo) list(ctx context.Context, query string, args ...any) ([]ActionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var actions []ActionRecord
	for rows.Next() {
		var a ActionRecord
		var due sql.NullString
		var completed int
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.ThoughtID, &a.Content, &a.Priority, &due, &completed, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.Completed = completed != 0
		if due.Valid {
			t, err := parseSQLiteTime(due.String)
			if err != nil {
				return nil, err
			}
			a.DueDate = &t
		}
		if a.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return actions, nil
}
