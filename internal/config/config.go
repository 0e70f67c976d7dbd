package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort string

	DBPath string

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	EmbeddingBaseURL   string
	EmbeddingModelName string

	WhisperBaseURL string
	WhisperModel   string

	DoclingBaseURL string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	AudioDir    string
	DocumentDir string
	ImportDir   string
	ImportWatch bool

	StepTimeout    time.Duration
	LinkCandidates int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be
// loaded automatically. Environment variables already set take precedence.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	// Walk up to find a project-root .env
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort: getEnv("API_PORT", "9000"),
		DBPath:  getEnv("DB_PATH", "./data/mirror.db"),

		LLMBaseURL:   getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMModelName: getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),

		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),

		WhisperBaseURL: getEnv("WHISPER_BASE_URL", ""),
		WhisperModel:   getEnv("WHISPER_MODEL", "whisper-1"),

		DoclingBaseURL: getEnv("DOCLING_BASE_URL", "http://localhost:5001"),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "thoughts"),

		AudioDir:    getEnv("AUDIO_DIR", "./uploads/audio"),
		DocumentDir: getEnv("DOCUMENT_DIR", "./uploads/documents"),
		ImportDir:   getEnv("IMPORT_DIR", "./imports"),
		ImportWatch: getEnv("IMPORT_WATCH", "false") == "true",

		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	// Embedding and Whisper services default to the LLM endpoint, which
	// covers the single OpenAI-compatible server deployment.
	if cfg.EmbeddingBaseURL == "" {
		cfg.EmbeddingBaseURL = cfg.LLMBaseURL
	}
	if cfg.WhisperBaseURL == "" {
		cfg.WhisperBaseURL = cfg.LLMBaseURL
	}

	// Parse QDRANT_VECTOR_SIZE. This must match the output vector size of
	// the embeddings model; if it changes, the collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	stepTimeout, err := strconv.Atoi(getEnv("STEP_TIMEOUT_SECONDS", "60"))
	if err != nil || stepTimeout <= 0 {
		return nil, fmt.Errorf("STEP_TIMEOUT_SECONDS must be a positive integer")
	}
	cfg.StepTimeout = time.Duration(stepTimeout) * time.Second

	linkCandidates, err := strconv.Atoi(getEnv("LINK_CANDIDATES", "10"))
	if err != nil || linkCandidates <= 0 {
		return nil, fmt.Errorf("LINK_CANDIDATES must be a positive integer")
	}
	cfg.LinkCandidates = linkCandidates

	cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	// Create working directories up front so capture and import paths
	// never race on first use.
	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.AudioDir, cfg.DocumentDir, cfg.ImportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL: %s", s)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
