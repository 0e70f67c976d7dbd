// Package enrich implements the AI enrichment pipeline that augments
// captured thoughts with transcription, embeddings, tags, links, actions,
// and reflections.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"mirza-mirror/internal/storage"
)

// Stage identifies one enrichment pipeline stage.
type Stage string

// Pipeline stages, in execution order.
const (
	StageTranscribe    Stage = "transcribe"
	StageParseDocument Stage = "parse_document"
	StageEmbed         Stage = "embed"
	StageTag           Stage = "tag"
	StageLink          Stage = "link"
	StageActions       Stage = "extract_actions"
	StageReflect       Stage = "reflect"
)

// Metadata keys written by the pipeline onto the thought.
const (
	metaEnrichment     = "enrichment"
	metaNeedsAttention = "needs_attention"
	metaEnrichedAt     = "enriched_at"
)

// Stage ledger values for stages that did not fail.
const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
)

// StepError wraps a failed enrichment step. Step failures are isolated:
// the pipeline records them and moves on.
type StepError struct {
	Stage Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// failed wraps a cause as a StepError for the given stage.
func failed(stage Stage, err error) *StepError {
	return &StepError{Stage: stage, Err: err}
}

// Step is one enrichment capability. Implementations persist their own
// results through the storage repos in short transactions; Run is never
// called inside a database transaction.
type Step interface {
	// Stage returns the stage this step implements.
	Stage() Stage
	// Applies reports whether the step is applicable to the thought in
	// its current state.
	Applies(t *storage.ThoughtRecord) bool
	// Run executes the step. Content-producing steps (transcribe, parse)
	// update t.Content in place so later stages see the text.
	Run(ctx context.Context, t *storage.ThoughtRecord) error
}

// Chatter sends prompts to the chat completion service.
// This interface is defined from the enrichment layer's perspective.
type Chatter interface {
	ChatWithSystem(ctx context.Context, system, message string) (string, error)
}

// Embedder generates embeddings for texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// hasText reports whether the thought has usable text content.
func hasText(t *storage.ThoughtRecord) bool {
	return strings.TrimSpace(t.Content) != ""
}
