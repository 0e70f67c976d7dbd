package enrich

import (
	"context"
	"fmt"
	"strings"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/llm"
	"mirza-mirror/internal/storage"
)

const tagSystemPrompt = `You categorize short personal notes.
Given a note, propose up to 5 tags describing its topics, projects, and emotional tone.
Respond with a JSON array only, no prose:
[{"name": "lowercase-tag", "type": "project|emotion|category|custom", "confidence": 0.0-1.0}]`

// TagStep asks the language model to categorize a thought and stores the
// resulting tags with their confidences.
type TagStep struct {
	chat Chatter
	tags storage.TagStore
}

func NewTagStep(chat Chatter, tags storage.TagStore) *TagStep {
	return &TagStep{chat: chat, tags: tags}
}

func (s *TagStep) Stage() Stage {
	return StageTag
}

func (s *TagStep) Applies(t *storage.ThoughtRecord) bool {
	return hasText(t)
}

func (s *TagStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	reply, err := s.chat.ChatWithSystem(ctx, tagSystemPrompt, t.Content)
	if err != nil {
		return failed(StageTag, err)
	}

	var proposed []struct {
		Name       string  `json:"name"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	}
	if err := llm.DecodeJSON(reply, &proposed); err != nil {
		return failed(StageTag, fmt.Errorf("failed to parse tag response: %w", err))
	}

	var inputs []storage.TagInput
	for _, p := range proposed {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		tagType := p.Type
		if !storage.ValidTagType(tagType) {
			tagType = storage.TagTypeCustom
		}
		inputs = append(inputs, storage.TagInput{Name: name, Type: tagType, Confidence: p.Confidence})
	}
	if len(inputs) == 0 {
		return nil
	}

	if err := s.tags.AddManyToThought(ctx, t.ID, inputs); err != nil {
		return failed(StageTag, fmt.Errorf("failed to store tags: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "tagged thought",
		"thought_id", t.ID, "tags", len(inputs))
	return nil
}
