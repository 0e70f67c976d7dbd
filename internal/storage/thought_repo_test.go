package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

// testDB opens a migrated temp database for a test.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestThoughtRepo_Create(t *testing.T) {
	db := testDB(t)
	repo := NewThoughtRepo(db)

	tests := []struct {
		name    string
		thought *ThoughtRecord
		wantErr error
	}{
		{
			name:    "text note",
			thought: &ThoughtRecord{Content: "remember to water the plants", Source: SourceTextNote},
		},
		{
			name:    "voice note with empty content",
			thought: &ThoughtRecord{Source: SourceVoiceNote, AudioFile: "/tmp/a.wav"},
		},
		{
			name:    "document with empty content",
			thought: &ThoughtRecord{Source: SourceDocument, DocumentFile: "/tmp/d.pdf"},
		},
		{
			name:    "text note with empty content",
			thought: &ThoughtRecord{Source: SourceTextNote},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown source",
			thought: &ThoughtRecord{Content: "x", Source: "telepathy"},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(context.Background(), tt.thought)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if tt.thought.ID == "" {
				t.Error("Create() did not assign an ID")
			}

			got, err := repo.Get(context.Background(), tt.thought.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Content != tt.thought.Content || got.Source != tt.thought.Source {
				t.Errorf("Get() = %+v, want content %q source %q", got, tt.thought.Content, tt.thought.Source)
			}
		})
	}
}

func TestThoughtRepo_Get_NotFound(t *testing.T) {
	repo := NewThoughtRepo(testDB(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestThoughtRepo_Patch(t *testing.T) {
	repo := NewThoughtRepo(testDB(t))
	ctx := context.Background()

	thought := &ThoughtRecord{
		Content:  "original",
		Source:   SourceTextNote,
		Metadata: map[string]any{"mood": "curious"},
	}
	if err := repo.Create(ctx, thought); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	created := thought.UpdatedAt

	time.Sleep(1100 * time.Millisecond)

	content := "revised"
	summary := "a short summary"
	got, err := repo.Patch(ctx, thought.ID, ThoughtPatch{
		Content:  &content,
		Summary:  &summary,
		Metadata: map[string]any{"reviewed": true},
	})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	if got.Content != "revised" || got.Summary != "a short summary" {
		t.Errorf("Patch() = content %q summary %q", got.Content, got.Summary)
	}
	if got.Metadata["mood"] != "curious" {
		t.Error("Patch() dropped existing metadata key")
	}
	if got.Metadata["reviewed"] != true {
		t.Error("Patch() did not merge new metadata key")
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("Patch() updated_at = %v, want after %v", got.UpdatedAt, created)
	}

	_, err = repo.Patch(ctx, "missing", ThoughtPatch{Content: &content})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Patch() error = %v, want ErrNotFound", err)
	}
}

func TestThoughtRepo_Delete_Cascades(t *testing.T) {
	db := testDB(t)
	thoughts := NewThoughtRepo(db)
	tags := NewTagRepo(db)
	links := NewLinkRepo(db)
	actions := NewActionRepo(db)
	ctx := context.Background()

	a := &ThoughtRecord{Content: "thought a", Source: SourceTextNote}
	b := &ThoughtRecord{Content: "thought b", Source: SourceTextNote}
	for _, th := range []*ThoughtRecord{a, b} {
		if err := thoughts.Create(ctx, th); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := tags.AddToThought(ctx, a.ID, "gardening", TagTypeCategory, 0.9); err != nil {
		t.Fatalf("AddToThought() error = %v", err)
	}
	if _, err := links.Add(ctx, a.ID, b.ID, RelSimilar, 0.8); err != nil {
		t.Fatalf("Add() link error = %v", err)
	}
	if _, err := links.Add(ctx, b.ID, a.ID, RelContinuation, 0.5); err != nil {
		t.Fatalf("Add() reverse link error = %v", err)
	}
	if _, err := actions.Add(ctx, a.ID, ActionInput{Content: "buy seeds"}); err != nil {
		t.Fatalf("Add() action error = %v", err)
	}

	if err := thoughts.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := thoughts.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	// The other endpoint survives.
	if _, err := thoughts.Get(ctx, b.ID); err != nil {
		t.Errorf("Get() other thought error = %v", err)
	}
	// Links in both directions are gone.
	remaining, err := links.ListForThought(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListForThought() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("ListForThought() after delete = %d links, want 0", len(remaining))
	}
	// The tag itself survives for other thoughts.
	allTags, err := tags.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(allTags) != 1 || allTags[0].Name != "gardening" {
		t.Errorf("ListAll() after delete = %+v, want the gardening tag", allTags)
	}
}

func TestThoughtRepo_ListRecent(t *testing.T) {
	repo := NewThoughtRepo(testDB(t))
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if err := repo.Create(ctx, &ThoughtRecord{Content: content, Source: SourceTextNote}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		time.Sleep(1100 * time.Millisecond)
	}

	got, err := repo.ListRecent(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "third" || got[1].Content != "second" {
		t.Errorf("ListRecent(2, 0) = %+v, want third then second", got)
	}

	got, err = repo.ListRecent(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "first" {
		t.Errorf("ListRecent(2, 2) = %+v, want first", got)
	}
}

func TestThoughtRepo_SearchContent(t *testing.T) {
	repo := NewThoughtRepo(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &ThoughtRecord{Content: "plan the garden layout", Source: SourceTextNote}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	summarized := &ThoughtRecord{Content: "long rambling note", Source: SourceTextNote}
	if err := repo.Create(ctx, summarized); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	summary := "notes about garden tools"
	if _, err := repo.Patch(ctx, summarized.ID, ThoughtPatch{Summary: &summary}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	got, err := repo.SearchContent(ctx, "GARDEN", 10)
	if err != nil {
		t.Fatalf("SearchContent() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("SearchContent() = %d thoughts, want 2 (content and summary matches)", len(got))
	}

	got, err = repo.SearchContent(ctx, "nonexistent", 10)
	if err != nil {
		t.Fatalf("SearchContent() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SearchContent() = %d thoughts, want 0", len(got))
	}
}
