package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestActionRepo_Add(t *testing.T) {
	db := testDB(t)
	thoughts := NewThoughtRepo(db)
	repo := NewActionRepo(db)
	ctx := context.Background()

	th := &ThoughtRecord{Content: "call the dentist tomorrow", Source: SourceTextNote}
	if err := thoughts.Create(ctx, th); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name         string
		thoughtID    string
		input        ActionInput
		wantErr      error
		wantPriority string
	}{
		{
			name:         "defaults to medium priority",
			thoughtID:    th.ID,
			input:        ActionInput{Content: "call dentist"},
			wantPriority: PriorityMedium,
		},
		{
			name:         "with priority and due date",
			thoughtID:    th.ID,
			input:        ActionInput{Content: "book cleaning", Priority: PriorityHigh, DueDate: &due},
			wantPriority: PriorityHigh,
		},
		{
			name:      "empty content",
			thoughtID: th.ID,
			input:     ActionInput{},
			wantErr:   ErrInvalidInput,
		},
		{
			name:      "missing thought",
			thoughtID: "missing",
			input:     ActionInput{Content: "x"},
			wantErr:   ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := repo.Add(ctx, tt.thoughtID, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Add() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if action.Priority != tt.wantPriority {
				t.Errorf("Add() priority = %q, want %q", action.Priority, tt.wantPriority)
			}
			if action.Completed {
				t.Error("Add() created a completed action")
			}
		})
	}
}

func TestActionRepo_ListOpen(t *testing.T) {
	db := testDB(t)
	thoughts := NewThoughtRepo(db)
	repo := NewActionRepo(db)
	ctx := context.Background()

	th := &ThoughtRecord{Content: "weekend chores", Source: SourceTextNote}
	if err := thoughts.Create(ctx, th); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	low, err := repo.Add(ctx, th.ID, ActionInput{Content: "sort bookshelf", Priority: PriorityLow})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	high, err := repo.Add(ctx, th.ID, ActionInput{Content: "pay rent", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	done, err := repo.Add(ctx, th.ID, ActionInput{Content: "water plants", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := repo.SetCompleted(ctx, done.ID, true); err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}

	open, err := repo.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("ListOpen() = %d actions, want 2", len(open))
	}
	if open[0].ID != high.ID || open[1].ID != low.ID {
		t.Errorf("ListOpen() order = [%s %s], want high before low", open[0].Content, open[1].Content)
	}

	// Reopening brings it back.
	if err := repo.SetCompleted(ctx, done.ID, false); err != nil {
		t.Fatalf("SetCompleted() reopen error = %v", err)
	}
	open, _ = repo.ListOpen(ctx, 10)
	if len(open) != 3 {
		t.Errorf("ListOpen() after reopen = %d actions, want 3", len(open))
	}
}

func TestActionRepo_AddMany(t *testing.T) {
	db := testDB(t)
	thoughts := NewThoughtRepo(db)
	repo := NewActionRepo(db)
	ctx := context.Background()

	th := &ThoughtRecord{Content: "planning", Source: SourceTextNote}
	if err := thoughts.Create(ctx, th); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.AddMany(ctx, th.ID, []ActionInput{
		{Content: "draft outline"},
		{Content: "   "},
		{Content: "send invites", Priority: PriorityLow},
	})
	if err != nil {
		t.Fatalf("AddMany() error = %v", err)
	}

	actions, err := repo.ListForThought(ctx, th.ID)
	if err != nil {
		t.Fatalf("ListForThought() error = %v", err)
	}
	if len(actions) != 2 {
		t.Errorf("ListForThought() = %d actions, want 2 (blank skipped)", len(actions))
	}
}

func TestActionRepo_Get(t *testing.T) {
	db := testDB(t)
	thoughts := NewThoughtRepo(db)
	repo := NewActionRepo(db)
	ctx := context.Background()

	th := &ThoughtRecord{Content: "water the seedlings", Source: SourceTextNote}
	if err := thoughts.Create(ctx, th); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	created, err := repo.Add(ctx, th.ID, ActionInput{Content: "water seedlings", Priority: PriorityHigh, DueDate: &due})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ThoughtID != th.ID || got.Priority != PriorityHigh || got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}
}
