package enrich

import (
	"context"
	"fmt"
	"strings"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/llm"
	"mirza-mirror/internal/storage"
)

const reflectSystemPrompt = `You reflect on personal notes.
Given a note, produce a one or two sentence summary, the dominant emotional tone if one is present, and any notable insights.
Respond with a JSON object only, no prose:
{"summary": "...", "emotion": "single lowercase word or empty string", "insights": ["..."]}`

// ReflectStep summarizes a thought, records its emotional tone as a tag,
// and stores any insights in the thought metadata.
type ReflectStep struct {
	chat     Chatter
	thoughts storage.ThoughtStore
	tags     storage.TagStore
}

func NewReflectStep(chat Chatter, thoughts storage.ThoughtStore, tags storage.TagStore) *ReflectStep {
	return &ReflectStep{chat: chat, thoughts: thoughts, tags: tags}
}

func (s *ReflectStep) Stage() Stage {
	return StageReflect
}

func (s *ReflectStep) Applies(t *storage.ThoughtRecord) bool {
	return hasText(t)
}

func (s *ReflectStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	reply, err := s.chat.ChatWithSystem(ctx, reflectSystemPrompt, t.Content)
	if err != nil {
		return failed(StageReflect, err)
	}

	var reflection struct {
		Summary  string   `json:"summary"`
		Emotion  string   `json:"emotion"`
		Insights []string `json:"insights"`
	}
	if err := llm.DecodeJSON(reply, &reflection); err != nil {
		return failed(StageReflect, fmt.Errorf("failed to parse reflection response: %w", err))
	}

	patch := storage.ThoughtPatch{}
	if summary := strings.TrimSpace(reflection.Summary); summary != "" {
		patch.Summary = &summary
	}
	if len(reflection.Insights) > 0 {
		patch.Metadata = map[string]any{"insights": reflection.Insights}
	}
	if patch.Summary != nil || patch.Metadata != nil {
		updated, err := s.thoughts.Patch(ctx, t.ID, patch)
		if err != nil {
			return failed(StageReflect, fmt.Errorf("failed to store reflection: %w", err))
		}
		t.Summary = updated.Summary
		t.Metadata = updated.Metadata
		t.UpdatedAt = updated.UpdatedAt
	}

	if emotion := strings.ToLower(strings.TrimSpace(reflection.Emotion)); emotion != "" {
		if err := s.tags.AddToThought(ctx, t.ID, emotion, storage.TagTypeEmotion, 1.0); err != nil {
			return failed(StageReflect, fmt.Errorf("failed to store emotion tag: %w", err))
		}
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "reflected on thought", "thought_id", t.ID)
	return nil
}
