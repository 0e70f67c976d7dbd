package enrich

import (
	"context"
	"fmt"
	"strings"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/llm"
	"mirza-mirror/internal/search"
	"mirza-mirror/internal/storage"
)

const linkSystemPrompt = `You connect related personal notes.
Given a note and a list of candidate notes, identify which candidates are genuinely related and how.
Relationships: similar, continuation, contradiction, inspiration.
Respond with a JSON array only, no prose:
[{"target_thought_id": "id from the candidate list", "relationship": "similar|continuation|contradiction|inspiration", "strength": 0.0-1.0}]
Return [] if nothing is related.`

// candidateSnippetLen bounds how much of each candidate is shown to the model.
const candidateSnippetLen = 300

// SimilarFinder retrieves the thoughts nearest to a given one.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, thoughtID string, limit int) ([]search.Result, error)
}

// LinkStep finds semantically similar thoughts and asks the language
// model to classify the relationships worth keeping.
type LinkStep struct {
	chat       Chatter
	similar    SimilarFinder
	links      storage.LinkStore
	candidates int
}

func NewLinkStep(chat Chatter, similar SimilarFinder, links storage.LinkStore, candidates int) *LinkStep {
	return &LinkStep{chat: chat, similar: similar, links: links, candidates: candidates}
}

func (s *LinkStep) Stage() Stage {
	return StageLink
}

func (s *LinkStep) Applies(t *storage.ThoughtRecord) bool {
	return hasText(t)
}

func (s *LinkStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	candidates, err := s.similar.FindSimilar(ctx, t.ID, s.candidates)
	if err != nil {
		return failed(StageLink, err)
	}
	if len(candidates) == 0 {
		return nil
	}

	known := make(map[string]bool, len(candidates))
	var prompt strings.Builder
	prompt.WriteString("Note:\n")
	prompt.WriteString(t.Content)
	prompt.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		known[c.Thought.ID] = true
		fmt.Fprintf(&prompt, "- id=%s: %s\n", c.Thought.ID, snippet(c.Thought.Content, candidateSnippetLen))
	}

	reply, err := s.chat.ChatWithSystem(ctx, linkSystemPrompt, prompt.String())
	if err != nil {
		return failed(StageLink, err)
	}

	var proposed []struct {
		TargetThoughtID string  `json:"target_thought_id"`
		Relationship    string  `json:"relationship"`
		Strength        float64 `json:"strength"`
	}
	if err := llm.DecodeJSON(reply, &proposed); err != nil {
		return failed(StageLink, fmt.Errorf("failed to parse link response: %w", err))
	}

	var inputs []storage.LinkInput
	for _, p := range proposed {
		// The model only gets to pick from the candidates it was shown.
		if !known[p.TargetThoughtID] || !storage.ValidRelationship(p.Relationship) {
			continue
		}
		inputs = append(inputs, storage.LinkInput{
			TargetThoughtID: p.TargetThoughtID,
			Relationship:    p.Relationship,
			Strength:        p.Strength,
		})
	}
	if len(inputs) == 0 {
		return nil
	}

	if err := s.links.AddManyFrom(ctx, t.ID, inputs); err != nil {
		return failed(StageLink, fmt.Errorf("failed to store links: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "linked thought",
		"thought_id", t.ID, "links", len(inputs))
	return nil
}

// snippet truncates s to at most n runes.
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
