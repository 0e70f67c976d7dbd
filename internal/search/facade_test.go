package search

import (
	"context"
	"errors"
	"testing"

	"mirza-mirror/internal/storage"
	"mirza-mirror/internal/vectorstore"
)

const testCollection = "thoughts"

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := f.vectors[text]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func testFacade(t *testing.T) (*Facade, *storage.ThoughtRepo, *vectorstore.MemoryStore, *fakeEmbedder) {
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

	thoughts := storage.NewThoughtRepo(db)
	vectors := vectorstore.NewMemoryStore()
	embedder := &fakeEmbedder{vectors: make(map[string][]float32)}
	return NewFacade(embedder, vectors, testCollection, thoughts), thoughts, vectors, embedder
}

// seed creates a thought and registers its vector.
func seed(t *testing.T, thoughts *storage.ThoughtRepo, vectors *vectorstore.MemoryStore, embedder *fakeEmbedder, content string, vec []float32) *storage.ThoughtRecord {
	t.Helper()
	ctx := context.Background()

	th := &storage.ThoughtRecord{Content: content, Source: storage.SourceTextNote}
	if err := thoughts.Create(ctx, th); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	embedder.vectors[content] = vec
	if err := vectors.Upsert(ctx, testCollection, []vectorstore.Point{{ID: th.ID, Vec: vec}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return th
}

func TestFacade_Search_BlendsKeywordAndVector(t *testing.T) {
	facade, thoughts, vectors, embedder := testFacade(t)
	ctx := context.Background()

	// Both thoughts are equally similar to the query vector; only one
	// contains the query term.
	keyword := seed(t, thoughts, vectors, embedder, "lavender cuttings rooted well", []float32{1, 0, 0})
	semantic := seed(t, thoughts, vectors, embedder, "the purple shrubs took root", []float32{1, 0, 0})
	embedder.vectors["lavender"] = []float32{1, 0, 0}

	results, err := facade.Search(ctx, "lavender", 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() = %d results, want 2", len(results))
	}
	if results[0].Thought.ID != keyword.ID {
		t.Errorf("Search() top = %q, want the keyword match first", results[0].Thought.Content)
	}
	if results[1].Thought.ID != semantic.ID {
		t.Errorf("Search() second = %q, want the semantic match", results[1].Thought.Content)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("Search() scores = %v, %v, want keyword match scored higher", results[0].Score, results[1].Score)
	}
}

func TestFacade_Search_ScoresNonIncreasing(t *testing.T) {
	facade, thoughts, vectors, embedder := testFacade(t)
	ctx := context.Background()

	seed(t, thoughts, vectors, embedder, "compost pile temperature", []float32{1, 0, 0})
	seed(t, thoughts, vectors, embedder, "compost turning schedule", []float32{0.5, 0.5, 0})
	seed(t, thoughts, vectors, embedder, "watering can repairs", []float32{0, 1, 0})
	embedder.vectors["compost"] = []float32{1, 0, 0}

	results, err := facade.Search(ctx, "compost", 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("Search() scores increase at %d: %v then %v", i, results[i-1].Score, results[i].Score)
		}
	}
}

func TestFacade_Search_DegradesWithoutEmbeddings(t *testing.T) {
	facade, thoughts, vectors, embedder := testFacade(t)
	ctx := context.Background()

	seed(t, thoughts, vectors, embedder, "sharpen the pruning shears", []float32{1, 0, 0})
	embedder.err = errors.New("embedding service down")

	results, err := facade.Search(ctx, "pruning", 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v, want keyword-only degradation", err)
	}
	if len(results) != 1 || results[0].Thought.Content != "sharpen the pruning shears" {
		t.Errorf("Search() = %+v, want the keyword match", results)
	}
}

func TestFacade_Search_EmptyQuery(t *testing.T) {
	facade, _, _, _ := testFacade(t)

	_, err := facade.Search(context.Background(), "   ", 10, 0)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Search() error = %v, want ErrInvalidInput", err)
	}
}

func TestFacade_Search_Pagination(t *testing.T) {
	facade, thoughts, vectors, embedder := testFacade(t)
	ctx := context.Background()

	contents := []string{"mint one", "mint two", "mint three", "mint four"}
	for i, content := range contents {
		vec := []float32{1, float32(i) * 0.1, 0}
		seed(t, thoughts, vectors, embedder, content, vec)
	}
	embedder.vectors["mint"] = []float32{1, 0, 0}

	all, err := facade.Search(ctx, "mint", 10, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Search() = %d results, want 4", len(all))
	}

	page, err := facade.Search(ctx, "mint", 2, 2)
	if err != nil {
		t.Fatalf("Search() page error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Search() page = %d results, want 2", len(page))
	}
	// The second page continues exactly where the first ended.
	if page[0].Thought.ID != all[2].Thought.ID || page[1].Thought.ID != all[3].Thought.ID {
		t.Errorf("Search() page = [%s %s], want [%s %s]",
			page[0].Thought.Content, page[1].Thought.Content,
			all[2].Thought.Content, all[3].Thought.Content)
	}
}

func TestFacade_FindSimilar(t *testing.T) {
	facade, thoughts, vectors, embedder := testFacade(t)
	ctx := context.Background()

	anchor := seed(t, thoughts, vectors, embedder, "raised bed drainage", []float32{1, 0, 0})
	near := seed(t, thoughts, vectors, embedder, "improving soil drainage", []float32{0.9, 0.1, 0})
	seed(t, thoughts, vectors, embedder, "birthday gift ideas", []float32{0, 0, 1})

	results, err := facade.FindSimilar(ctx, anchor.ID, 2)
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("FindSimilar() = %d results, want 2", len(results))
	}
	for _, res := range results {
		if res.Thought.ID == anchor.ID {
			t.Error("FindSimilar() returned the thought itself")
		}
	}
	if results[0].Thought.ID != near.ID {
		t.Errorf("FindSimilar() top = %q, want the nearest thought", results[0].Thought.Content)
	}

	if _, err := facade.FindSimilar(ctx, "missing", 5); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindSimilar() missing error = %v, want ErrNotFound", err)
	}
}
