package enrich

import (
	"context"
	"fmt"
	"time"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/storage"
)

// StageOutcome records what happened to one stage during an enrichment run.
type StageOutcome struct {
	Stage   Stage  `json:"stage"`
	Outcome string `json:"outcome"` // "ok", "skipped", or the error text
}

// Pipeline runs the enrichment steps against a thought in order. Steps
// are best effort: a failing step is recorded and the rest still run.
// The per-stage ledger lives in the thought metadata, so a later run
// retries only the stages that have not succeeded yet.
type Pipeline struct {
	thoughts    storage.ThoughtStore
	steps       []Step
	stepTimeout time.Duration
}

func NewPipeline(thoughts storage.ThoughtStore, steps []Step, stepTimeout time.Duration) *Pipeline {
	return &Pipeline{thoughts: thoughts, steps: steps, stepTimeout: stepTimeout}
}

// Enrich runs all applicable steps for the thought and writes the stage
// ledger back to its metadata. The returned outcomes mirror the ledger
// for this run. An error is returned only when the thought cannot be
// loaded or the ledger cannot be saved; step failures are in the ledger.
func (p *Pipeline) Enrich(ctx context.Context, thoughtID string) ([]StageOutcome, error) {
	logger := contextutil.LoggerFromContext(ctx)

	t, err := p.thoughts.Get(ctx, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thought for enrichment: %w", err)
	}

	ledger := readLedger(t.Metadata)
	outcomes := make([]StageOutcome, 0, len(p.steps))
	failures := 0

	for _, step := range p.steps {
		stage := step.Stage()
		key := string(stage)

		if ledger[key] == outcomeOK {
			outcomes = append(outcomes, StageOutcome{Stage: stage, Outcome: outcomeOK})
			continue
		}
		if !step.Applies(t) {
			ledger[key] = outcomeSkipped
			outcomes = append(outcomes, StageOutcome{Stage: stage, Outcome: outcomeSkipped})
			continue
		}

		stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
		err := step.Run(stepCtx, t)
		cancel()

		if err != nil {
			failures++
			ledger[key] = err.Error()
			outcomes = append(outcomes, StageOutcome{Stage: stage, Outcome: err.Error()})
			logger.WarnContext(ctx, "enrichment step failed",
				"thought_id", thoughtID, "stage", stage, "error", err)
			continue
		}
		ledger[key] = outcomeOK
		outcomes = append(outcomes, StageOutcome{Stage: stage, Outcome: outcomeOK})
	}

	// A voice note or document with no text after the run needs a human
	// look: its content-producing stage could not deliver.
	needsAttention := !hasText(t) &&
		(t.Source == storage.SourceVoiceNote || t.Source == storage.SourceDocument)

	_, err = p.thoughts.Patch(ctx, thoughtID, storage.ThoughtPatch{
		Metadata: map[string]any{
			metaEnrichment:     ledger,
			metaNeedsAttention: needsAttention,
			metaEnrichedAt:     time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return outcomes, fmt.Errorf("failed to save enrichment ledger: %w", err)
	}

	logger.InfoContext(ctx, "enrichment run finished",
		"thought_id", thoughtID, "stages", len(outcomes), "failures", failures,
		"needs_attention", needsAttention)
	return outcomes, nil
}

// readLedger pulls the stage ledger out of thought metadata. Values
// arrive as map[string]any after a JSON round trip through the database.
func readLedger(metadata map[string]any) map[string]string {
	ledger := make(map[string]string)
	raw, ok := metadata[metaEnrichment]
	if !ok {
		return ledger
	}
	switch m := raw.(type) {
	case map[string]string:
		for k, v := range m {
			ledger[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				ledger[k] = s
			}
		}
	}
	return ledger
}
