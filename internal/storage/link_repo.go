package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LinkInput is one directed link to record, as produced by the linking step.
type LinkInput struct {
	TargetThoughtID string
	Relationship    string
	Strength        float64
}

// LinkPatch holds optional updates to a link. Nil fields are left unchanged.
type LinkPatch struct {
	Relationship *string
	Strength     *float64
}

// LinkStore defines the interface for link storage operations.
type LinkStore interface {
	// Add records a directed link between two thoughts. Returns
	// ErrInvalidInput when source equals target or the relationship is
	// unknown, ErrNotFound when either endpoint is missing. Adding the
	// same (source, target, relationship) again updates strength.
	Add(ctx context.Context, sourceID, targetID, relationship string, strength float64) (*LinkRecord, error)
	// AddManyFrom records a batch of links from one source thought in a
	// single transaction.
	AddManyFrom(ctx context.Context, sourceID string, links []LinkInput) error
	// Get returns a link by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*LinkRecord, error)
	// Patch updates a link's relationship or strength and returns the
	// updated record.
	Patch(ctx context.Context, id string, patch LinkPatch) (*LinkRecord, error)
	// ListForThought returns links where the thought is source or target,
	// newest first.
	ListForThought(ctx context.Context, thoughtID string) ([]LinkRecord, error)
	// Delete removes a link by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// LinkRepo provides methods for link operations.
// It implements the LinkStore interface.
type LinkRepo struct {
	db *sql.DB
}

// NewLinkRepo creates a new LinkRepo.
func NewLinkRepo(db *sql.DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// Add records a directed link between two thoughts.
func (r *LinkRepo) Add(ctx context.Context, sourceID, targetID, relationship string, strength float64) (*LinkRecord, error) {
	if err := r.AddManyFrom(ctx, sourceID, []LinkInput{{TargetThoughtID: targetID, Relationship: relationship, Strength: strength}}); err != nil {
		return nil, err
	}

	var link LinkRecord
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_thought_id, target_thought_id, relationship, strength, created_at
		 FROM links WHERE source_thought_id = ? AND target_thought_id = ? AND relationship = ?`,
		sourceID, targetID, relationship,
	).Scan(&link.ID, &link.SourceThoughtID, &link.TargetThoughtID, &link.Relationship, &link.Strength, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read back link: %w", err)
	}
	if link.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return &link, nil
}

// AddManyFrom records a batch of links from one source thought in a single
// transaction. The link is directed: no reverse row is created.
func (r *LinkRepo) AddManyFrom(ctx context.Context, sourceID string, links []LinkInput) error {
	if len(links) == 0 {
		return nil
	}

	for _, in := range links {
		if in.TargetThoughtID == sourceID {
			return fmt.Errorf("%w: link source and target must differ", ErrInvalidInput)
		}
		if !ValidRelationship(in.Relationship) {
			return fmt.Errorf("%w: unknown relationship %q", ErrInvalidInput, in.Relationship)
		}
	}

	if err := r.checkThoughtExists(ctx, sourceID); err != nil {
		return err
	}
	for _, in := range links {
		if err := r.checkThoughtExists(ctx, in.TargetThoughtID); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := formatSQLiteTime(time.Now().UTC())
	for _, in := range links {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO links (id, source_thought_id, target_thought_id, relationship, strength, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (source_thought_id, target_thought_id, relationship) DO UPDATE SET strength = excluded.strength`,
			uuid.New().String(), sourceID, in.TargetThoughtID, in.Relationship, clamp01(in.Strength), now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert link: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE thoughts SET updated_at = ? WHERE id = ?", now, sourceID); err != nil {
		return fmt.Errorf("failed to touch thought: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit links: %w", err)
	}
	return nil
}

// Get returns a link by ID.
func (r *LinkRepo) Get(ctx context.Context, id string) (*LinkRecord, error) {
	var link LinkRecord
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_thought_id, target_thought_id, relationship, strength, created_at
		 FROM links WHERE id = ?`, id,
	).Scan(&link.ID, &link.SourceThoughtID, &link.TargetThoughtID, &link.Relationship, &link.Strength, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link: %w", err)
	}
	if link.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return &link, nil
}

// Patch updates a link's relationship or strength.
func (r *LinkRepo) Patch(ctx context.Context, id string, patch LinkPatch) (*LinkRecord, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Relationship != nil {
		if !ValidRelationship(*patch.Relationship) {
			return nil, fmt.Errorf("%w: unknown relationship %q", ErrInvalidInput, *patch.Relationship)
		}
		existing.Relationship = *patch.Relationship
	}
	if patch.Strength != nil {
		existing.Strength = clamp01(*patch.Strength)
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE links SET relationship = ?, strength = ? WHERE id = ?",
		existing.Relationship, existing.Strength, id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: link %s -> %s (%s) already exists",
			ErrInvalidInput, existing.SourceThoughtID, existing.TargetThoughtID, existing.Relationship)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return existing, nil
}

// ListForThought returns links where the thought is source or target.
func (r *LinkRepo) ListForThought(ctx context.Context, thoughtID string) ([]LinkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source_thought_id, target_thought_id, relationship, strength, created_at
		 FROM links WHERE source_thought_id = ? OR target_thought_id = ?
		 ORDER BY created_at DESC, id`, thoughtID, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var links []LinkRecord
	for rows.Next() {
		var link LinkRecord
		var createdAt string
		if err := rows.Scan(&link.ID, &link.SourceThoughtID, &link.TargetThoughtID, &link.Relationship, &link.Strength, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		if link.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return links, nil
}

// Delete removes a link by ID.
func (r *LinkRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LinkRepo) checkThoughtExists(ctx context.Context, id string) error {
	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM thoughts WHERE id = ?", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("thought %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check thought existence: %w", err)
	}
	return nil
}
