package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ImportsFileWrittenAfterCreate(t *testing.T) {
	imp, conversations, _, _ := testImporter(t)
	dir := t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(imp, dir, logger)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() {
		_ = w.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Watch(ctx)
	}()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Create empty, then write the real content afterwards. The import
	// must see the full file, not the empty one from the Create event.
	path := filepath.Join(dir, "chatgpt-2026-08.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	content := `[{"role": "user", "content": "q"}, {"role": "assistant", "content": "a"}]`
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		convs, err := conversations.List(context.Background(), 10)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(convs) > 0 {
			if len(convs) != 1 {
				t.Fatalf("List() = %d conversations, want 1", len(convs))
			}
			members, err := conversations.Members(context.Background(), convs[0].ID)
			if err != nil {
				t.Fatalf("Members() error = %v", err)
			}
			if len(members) != 2 {
				t.Fatalf("Members() = %d, want 2", len(members))
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("dropped file was never imported")
}
