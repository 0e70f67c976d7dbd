package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"mirza-mirror/internal/enrich"
	"mirza-mirror/internal/service"
	"mirza-mirror/internal/storage"
	"mirza-mirror/internal/vectorstore"
)

// fakeEnricher records enrichment requests instead of calling AI services.
type fakeEnricher struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeEnricher) Enrich(ctx context.Context, thoughtID string) ([]enrich.StageOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, thoughtID)
	return []enrich.StageOutcome{{Stage: enrich.StageTag, Outcome: "ok"}}, nil
}

type testEnv struct {
	router    chi.Router
	thoughts  *storage.ThoughtRepo
	tags      *storage.TagRepo
	links     *storage.LinkRepo
	actions   *storage.ActionRepo
	documents *storage.DocumentRepo
	vectors   *vectorstore.MemoryStore
	enricher  *fakeEnricher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.New(dir + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	env := &testEnv{
		thoughts:  storage.NewThoughtRepo(db),
		tags:      storage.NewTagRepo(db),
		links:     storage.NewLinkRepo(db),
		actions:   storage.NewActionRepo(db),
		documents: storage.NewDocumentRepo(db),
		vectors:   vectorstore.NewMemoryStore(),
		enricher:  &fakeEnricher{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	capture := service.NewCaptureService(env.thoughts, env.documents, env.enricher, env.vectors, "thoughts", dir, dir, logger)
	handler := NewThoughtHandler(capture, env.thoughts, env.tags, env.links, env.actions)

	r := chi.NewRouter()
	r.Post("/api/thoughts", handler.CreateText)
	r.Post("/api/thoughts/audio", handler.CreateAudio)
	r.Post("/api/thoughts/document", handler.CreateDocument)
	r.Get("/api/thoughts", handler.List)
	r.Get("/api/thoughts/{id}", handler.Get)
	r.Patch("/api/thoughts/{id}", handler.Patch)
	r.Delete("/api/thoughts/{id}", handler.Delete)
	r.Get("/api/thoughts/{id}/links", handler.Links)
	r.Post("/api/thoughts/{id}/enrich", handler.Enrich)
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestThoughtHandler_CreateText(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/thoughts", CreateTextRequest{Content: "remember the ferns"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateText status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp ThoughtResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID == "" || resp.Content != "remember the ferns" || resp.Source != storage.SourceTextNote {
		t.Errorf("CreateText response = %+v", resp)
	}
}

func TestThoughtHandler_CreateTextInvalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/thoughts", CreateTextRequest{Content: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("CreateText empty content status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/thoughts", strings.NewReader("not json"))
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("CreateText malformed body status = %d, want 400", rec2.Code)
	}
}

func TestThoughtHandler_CreateAudio(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "memo.m4a")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("fake audio")); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest("POST", "/api/thoughts/audio", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateAudio status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp ThoughtResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Source != storage.SourceVoiceNote || resp.AudioFile == "" {
		t.Errorf("CreateAudio response = %+v", resp)
	}
}

func TestThoughtHandler_CreateDocument(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="notes.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 fake")); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest("POST", "/api/thoughts/document", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateDocument status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp ThoughtResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Source != storage.SourceDocument {
		t.Errorf("CreateDocument source = %q, want %q", resp.Source, storage.SourceDocument)
	}

	// The document row records the uploaded part's type, not the
	// multipart envelope's.
	doc, err := env.documents.GetByThought(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("GetByThought() error = %v", err)
	}
	if doc.ContentType != "application/pdf" {
		t.Errorf("document content_type = %q, want application/pdf", doc.ContentType)
	}
}

func TestThoughtHandler_CreateAudioMissingFile(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/thoughts/audio", strings.NewReader(""))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("CreateAudio without file status = %d, want 400", rec.Code)
	}
}

func TestThoughtHandler_GetWithEnrichmentData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	thought := &storage.ThoughtRecord{Content: "plant the lavender", Source: storage.SourceTextNote}
	if err := env.thoughts.Create(ctx, thought); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	other := &storage.ThoughtRecord{Content: "buy potting soil", Source: storage.SourceTextNote}
	if err := env.thoughts.Create(ctx, other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.tags.AddToThought(ctx, thought.ID, "garden", storage.TagTypeCategory, 0.9); err != nil {
		t.Fatalf("AddToThought() error = %v", err)
	}
	if _, err := env.links.Add(ctx, thought.ID, other.ID, storage.RelSimilar, 0.8); err != nil {
		t.Fatalf("Add() link error = %v", err)
	}
	if _, err := env.actions.Add(ctx, thought.ID, storage.ActionInput{Content: "order seeds"}); err != nil {
		t.Fatalf("Add() action error = %v", err)
	}

	rec := env.do(t, "GET", "/api/thoughts/"+thought.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Get status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp ThoughtResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Tags) != 1 || resp.Tags[0].Name != "garden" {
		t.Errorf("Get tags = %+v, want garden", resp.Tags)
	}
	if len(resp.Links) != 1 || resp.Links[0].TargetThoughtID != other.ID {
		t.Errorf("Get links = %+v", resp.Links)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Content != "order seeds" {
		t.Errorf("Get actions = %+v", resp.Actions)
	}
}

func TestThoughtHandler_GetNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/thoughts/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Get missing status = %d, want 404", rec.Code)
	}
}

func TestThoughtHandler_ListByTag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tagged := &storage.ThoughtRecord{Content: "prune the roses", Source: storage.SourceTextNote}
	plain := &storage.ThoughtRecord{Content: "tax paperwork", Source: storage.SourceTextNote}
	for _, th := range []*storage.ThoughtRecord{tagged, plain} {
		if err := env.thoughts.Create(ctx, th); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := env.tags.AddToThought(ctx, tagged.ID, "garden", storage.TagTypeCategory, 0.9); err != nil {
		t.Fatalf("AddToThought() error = %v", err)
	}

	rec := env.do(t, "GET", "/api/thoughts?tag=garden", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("List status = %d: %s", rec.Code, rec.Body)
	}
	var resp []ThoughtResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != tagged.ID {
		t.Errorf("List by tag = %+v, want only the tagged thought", resp)
	}

	rec = env.do(t, "GET", "/api/thoughts", nil)
	resp = nil
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("List = %d thoughts, want 2", len(resp))
	}
}

func TestThoughtHandler_PatchAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	thought := &storage.ThoughtRecord{Content: "draft", Source: storage.SourceTextNote}
	if err := env.thoughts.Create(ctx, thought); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newContent := "final"
	rec := env.do(t, "PATCH", "/api/thoughts/"+thought.ID, PatchRequest{Content: &newContent})
	if rec.Code != http.StatusOK {
		t.Fatalf("Patch status = %d: %s", rec.Code, rec.Body)
	}
	var resp ThoughtResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Content != "final" {
		t.Errorf("Patch content = %q, want final", resp.Content)
	}

	if rec := env.do(t, "PATCH", "/api/thoughts/missing", PatchRequest{Content: &newContent}); rec.Code != http.StatusNotFound {
		t.Errorf("Patch missing status = %d, want 404", rec.Code)
	}

	if rec := env.do(t, "DELETE", "/api/thoughts/"+thought.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Delete status = %d, want 204", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/thoughts/"+thought.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Get after delete status = %d, want 404", rec.Code)
	}
}

func TestThoughtHandler_Enrich(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	thought := &storage.ThoughtRecord{Content: "revisit later", Source: storage.SourceTextNote}
	if err := env.thoughts.Create(ctx, thought); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := env.do(t, "POST", "/api/thoughts/"+thought.ID+"/enrich", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Enrich status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		ThoughtID string                `json:"thought_id"`
		Stages    []enrich.StageOutcome `json:"stages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ThoughtID != thought.ID || len(resp.Stages) != 1 {
		t.Errorf("Enrich response = %+v", resp)
	}
}
