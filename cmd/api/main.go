package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"mirza-mirror/internal/config"
	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/docling"
	"mirza-mirror/internal/enrich"
	"mirza-mirror/internal/http"
	"mirza-mirror/internal/importer"
	"mirza-mirror/internal/llm"
	"mirza-mirror/internal/search"
	"mirza-mirror/internal/service"
	"mirza-mirror/internal/storage"
	"mirza-mirror/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	thoughtRepo := storage.NewThoughtRepo(db)
	tagRepo := storage.NewTagRepo(db)
	linkRepo := storage.NewLinkRepo(db)
	actionRepo := storage.NewActionRepo(db)
	conversationRepo := storage.NewConversationRepo(db)
	documentRepo := storage.NewDocumentRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// External AI clients
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	transcriber := llm.NewTranscriptionClient(cfg.WhisperBaseURL, cfg.LLMAPIKey, cfg.WhisperModel)
	doclingClient := docling.NewClient(cfg.DoclingBaseURL)

	// Retrieval facade
	searchFacade := search.NewFacade(embedder, vectorStore, cfg.QdrantCollection, thoughtRepo)

	// Enrichment pipeline
	steps := []enrich.Step{
		enrich.NewTranscribeStep(transcriber, thoughtRepo),
		enrich.NewParseDocumentStep(doclingClient, documentRepo, thoughtRepo),
		enrich.NewEmbedStep(embedder, vectorStore, cfg.QdrantCollection, thoughtRepo),
		enrich.NewTagStep(llmClient, tagRepo),
		enrich.NewLinkStep(llmClient, searchFacade, linkRepo, cfg.LinkCandidates),
		enrich.NewActionStep(llmClient, actionRepo),
		enrich.NewReflectStep(llmClient, thoughtRepo, tagRepo),
	}
	pipeline := enrich.NewPipeline(thoughtRepo, steps, cfg.StepTimeout)
	slog.Info("Enrichment pipeline initialized", "stages", len(steps))

	// Capture service and conversation importer
	captureService := service.NewCaptureService(thoughtRepo, documentRepo, pipeline, vectorStore, cfg.QdrantCollection, cfg.AudioDir, cfg.DocumentDir, logger)
	conversationImporter := importer.New(conversationRepo, pipeline, logger)

	// Watch the import drop directory if enabled
	if cfg.ImportWatch {
		watcher, err := importer.NewWatcher(conversationImporter, cfg.ImportDir, logger)
		if err != nil {
			log.Fatalf("Failed to create import watcher: %v", err)
		}
		go func() {
			watchCtx := contextutil.WithLogger(context.Background(), logger)
			slog.Info("Watching import directory", "dir", cfg.ImportDir)
			if err := watcher.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
				slog.Error("Import watcher stopped", "error", err)
			}
		}()
	}

	// Create router with dependencies
	deps := &http.Deps{
		DB:            db,
		Capture:       captureService,
		Importer:      conversationImporter,
		Search:        searchFacade,
		Thoughts:      thoughtRepo,
		Tags:          tagRepo,
		Links:         linkRepo,
		Actions:       actionRepo,
		Conversations: conversationRepo,
		VectorChecker: vectorStore,
		Collection:    cfg.QdrantCollection,
		Logger:        logger,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
