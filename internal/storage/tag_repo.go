package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Maximum attempts for the lookup-or-create race on the tags.name unique
// constraint before giving up with ErrConflictRetry.
const tagCreateRetries = 3

// TagInput is one tag to attach to a thought, as produced by the tagging step.
type TagInput struct {
	Name       string
	Type       string
	Confidence float64
}

// TagPatch holds optional updates to a tag. Nil fields are left unchanged.
type TagPatch struct {
	Name *string
	Type *string
}

// TagStore defines the interface for tag storage operations.
type TagStore interface {
	// GetOrCreateByName returns the tag with the given name, creating it
	// if needed. The unique constraint on name is the de-duplication
	// mechanism under concurrency.
	GetOrCreateByName(ctx context.Context, name, tagType string) (TagRecord, error)
	// AddToThought attaches a tag (looked up or created by name) to a
	// thought, clamping confidence to [0,1]. Re-attaching an existing
	// name updates the association confidence instead of duplicating.
	AddToThought(ctx context.Context, thoughtID, name, tagType string, confidence float64) error
	// AddManyToThought attaches a batch of tags in one transaction:
	// either all associations land or none do.
	AddManyToThought(ctx context.Context, thoughtID string, tags []TagInput) error
	// ListForThought returns the tags attached to a thought with their
	// association confidence, ordered by name.
	ListForThought(ctx context.Context, thoughtID string) ([]ThoughtTag, error)
	// ListAll returns all tags ordered by name.
	ListAll(ctx context.Context) ([]TagRecord, error)
	// Get returns a tag by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (TagRecord, error)
	// Patch renames or retypes a tag and returns the updated record.
	Patch(ctx context.Context, id string, patch TagPatch) (TagRecord, error)
	// Delete removes a tag by ID along with its thought associations.
	Delete(ctx context.Context, id string) error
}

// TagRepo provides methods for tag operations.
// It implements the TagStore interface.
type TagRepo struct {
	db *sql.DB
}

// NewTagRepo creates a new TagRepo.
func NewTagRepo(db *sql.DB) *TagRepo {
	return &TagRepo{db: db}
}

// GetOrCreateByName returns the tag with the given name, creating it if needed.
func (r *TagRepo) GetOrCreateByName(ctx context.Context, name, tagType string) (TagRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TagRecord{}, fmt.Errorf("%w: tag name must not be empty", ErrInvalidInput)
	}
	if tagType == "" {
		tagType = TagTypeCustom
	}

	for attempt := 0; attempt < tagCreateRetries; attempt++ {
		tag, err := r.getByName(ctx, name)
		if err == nil {
			return tag, nil
		}
		if err != ErrNotFound {
			return TagRecord{}, err
		}

		now := formatSQLiteTime(time.Now().UTC())
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO tags (id, name, type, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			uuid.New().String(), name, tagType, now, now,
		)
		if err == nil {
			return r.getByName(ctx, name)
		}
		if !isUniqueViolation(err) {
			return TagRecord{}, fmt.Errorf("failed to insert tag: %w", err)
		}
		// Lost the race to a concurrent insert; re-read on next attempt.
	}

	return TagRecord{}, fmt.Errorf("tag %q: %w", name, ErrConflictRetry)
}

// AddToThought attaches a tag to a thought.
func (r *TagRepo) AddToThought(ctx context.Context, thoughtID, name, tagType string, confidence float64) error {
	return r.AddManyToThought(ctx, thoughtID, []TagInput{{Name: name, Type: tagType, Confidence: confidence}})
}

// AddManyToThought attaches a batch of tags in one transaction.
func (r *TagRepo) AddManyToThought(ctx context.Context, thoughtID string, tags []TagInput) error {
	if len(tags) == 0 {
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

	// Tag rows are looked up or created outside the association
	// transaction; the name unique constraint keeps this race-safe.
	tagIDs := make([]string, len(tags))
	for i, in := range tags {
		tag, err := r.GetOrCreateByName(ctx, in.Name, in.Type)
		if err != nil {
			return err
		}
		tagIDs[i] = tag.ID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := formatSQLiteTime(time.Now().UTC())
	for i, in := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO thought_tags (thought_id, tag_id, confidence, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (thought_id, tag_id) DO UPDATE SET confidence = excluded.confidence`,
			thoughtID, tagIDs[i], clamp01(in.Confidence), now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert tag association: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE thoughts SET updated_at = ? WHERE id = ?", now, thoughtID); err != nil {
		return fmt.Errorf("failed to touch thought: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tag associations: %w", err)
	}
	return nil
}

// ListForThought returns the tags attached to a thought with confidence.
func (r *TagRepo) ListForThought(ctx context.Context, thoughtID string) ([]ThoughtTag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.type, t.created_at, t.updated_at, tt.confidence
		 FROM tags t
		 JOIN thought_tags tt ON tt.tag_id = t.id
		 WHERE tt.thought_id = ?
		 ORDER BY t.name`, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thought tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []ThoughtTag
	for rows.Next() {
		var tt ThoughtTag
		var createdAt, updatedAt string
		if err := rows.Scan(&tt.Tag.ID, &tt.Tag.Name, &tt.Tag.Type, &createdAt, &updatedAt, &tt.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		if tt.Tag.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		if tt.Tag.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// ListAll returns all tags ordered by name.
func (r *TagRepo) ListAll(ctx context.Context) ([]TagRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, type, created_at, updated_at FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tags []TagRecord
	for rows.Next() {
		var tag TagRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Type, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		if tag.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		if tag.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tags, nil
}

// Get returns a tag by ID.
func (r *TagRepo) Get(ctx context.Context, id string) (TagRecord, error) {
	var tag TagRecord
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, type, created_at, updated_at FROM tags WHERE id = ?", id,
	).Scan(&tag.ID, &tag.Name, &tag.Type, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return TagRecord{}, ErrNotFound
	}
	if err != nil {
		return TagRecord{}, fmt.Errorf("failed to query tag: %w", err)
	}
	if tag.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return TagRecord{}, err
	}
	if tag.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return TagRecord{}, err
	}
	return tag, nil
}

// Patch renames or retypes a tag and returns the updated record.
func (r *TagRepo) Patch(ctx context.Context, id string, patch TagPatch) (TagRecord, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return TagRecord{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return TagRecord{}, fmt.Errorf("%w: tag name must not be empty", ErrInvalidInput)
		}
		existing.Name = name
	}
	if patch.Type != nil {
		if !ValidTagType(*patch.Type) {
			return TagRecord{}, fmt.Errorf("%w: unknown tag type %q", ErrInvalidInput, *patch.Type)
		}
		existing.Type = *patch.Type
	}

	existing.UpdatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		"UPDATE tags SET name = ?, type = ?, updated_at = ? WHERE id = ?",
		existing.Name, existing.Type, formatSQLiteTime(existing.UpdatedAt), id)
	if isUniqueViolation(err) {
		return TagRecord{}, fmt.Errorf("%w: tag name %q already in use", ErrInvalidInput, existing.Name)
	}
	if err != nil {
		return TagRecord{}, fmt.Errorf("failed to update tag: %w", err)
	}
	return existing, nil
}

// Delete removes a tag by ID. Associations in thought_tags go with it
// via the foreign key cascade.
func (r *TagRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TagRepo) getByName(ctx context.Context, name string) (TagRecord, error) {
	var tag TagRecord
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, type, created_at, updated_at FROM tags WHERE name = ?", name,
	).Scan(&tag.ID, &tag.Name, &tag.Type, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return TagRecord{}, ErrNotFound
	}
	if err != nil {
		return TagRecord{}, fmt.Errorf("failed to query tag: %w", err)
	}
	if tag.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return TagRecord{}, err
	}
	if tag.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return TagRecord{}, err
	}
	return tag, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
// Matched by message to avoid a hard dependency on driver error codes.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
