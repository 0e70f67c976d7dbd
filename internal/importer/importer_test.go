package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mirza-mirror/internal/enrich"
	"mirza-mirror/internal/storage"
)

type fakeEnricher struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeEnricher) Enrich(ctx context.Context, thoughtID string) ([]enrich.StageOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, thoughtID)
	return nil, nil
}

func (f *fakeEnricher) enriched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func testImporter(t *testing.T) (*Importer, *storage.ConversationRepo, *storage.ThoughtRepo, *fakeEnricher) {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	conversations := storage.NewConversationRepo(db)
	thoughts := storage.NewThoughtRepo(db)
	enricher := &fakeEnricher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(conversations, enricher, logger), conversations, thoughts, enricher
}

func TestImporter_Import(t *testing.T) {
	imp, conversations, thoughts, enricher := testImporter(t)
	ctx := context.Background()

	data := `[{"type": "human", "text": "what is mulch for?"}, {"type": "assistant", "text": "it keeps moisture in and weeds out"}]`
	result, err := imp.Import(ctx, []byte(data), SourceClaude, FormatJSON, "claude-export.json")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.MessageCount != 2 || len(result.ThoughtIDs) != 2 {
		t.Fatalf("Import() = %+v, want 2 messages", result)
	}

	members, err := conversations.Members(ctx, result.ConversationID)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Members() = %d rows, want 2", len(members))
	}
	for i, m := range members {
		if m.SegmentIndex != i {
			t.Errorf("Members()[%d].SegmentIndex = %d, want %d", i, m.SegmentIndex, i)
		}
	}
	if members[0].Role != RoleUser || members[1].Role != RoleAssistant {
		t.Errorf("Members() roles = %q, %q", members[0].Role, members[1].Role)
	}

	th, err := thoughts.Get(ctx, result.ThoughtIDs[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if th.Source != storage.SourceImport {
		t.Errorf("thought source = %q, want %q", th.Source, storage.SourceImport)
	}
	if th.Metadata["role"] != RoleUser || th.Metadata["import_source"] != SourceClaude {
		t.Errorf("thought metadata = %+v", th.Metadata)
	}

	// Background enrichment eventually covers every imported thought.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(enricher.enriched()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := enricher.enriched(); len(got) != 2 {
		t.Errorf("enriched thoughts = %v, want both", got)
	}
}

func TestImporter_Import_ParseFailureWritesNothing(t *testing.T) {
	imp, conversations, _, enricher := testImporter(t)
	ctx := context.Background()

	_, err := imp.Import(ctx, []byte("free-form text"), SourceClaude, "xml", "bad.xml")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Import() error = %v, want ErrUnsupportedFormat", err)
	}

	convs, err := conversations.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("List() = %d conversations, want 0", len(convs))
	}
	if len(enricher.enriched()) != 0 {
		t.Error("enrichment ran for a failed import")
	}
}
