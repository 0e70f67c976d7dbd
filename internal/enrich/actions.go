package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/llm"
	"mirza-mirror/internal/storage"
)

const actionSystemPrompt = `You extract action items from personal notes.
Only extract concrete, actionable tasks the author committed to or clearly intends to do.
Respond with a JSON array only, no prose:
[{"content": "the task", "priority": "high|medium|low", "due_date": "YYYY-MM-DD or null"}]
Return [] if the note contains no tasks.`

// ActionStep extracts actionable tasks from a thought.
type ActionStep struct {
	chat    Chatter
	actions storage.ActionStore
}

func NewActionStep(chat Chatter, actions storage.ActionStore) *ActionStep {
	return &ActionStep{chat: chat, actions: actions}
}

func (s *ActionStep) Stage() Stage {
	return StageActions
}

func (s *ActionStep) Applies(t *storage.ThoughtRecord) bool {
	return hasText(t)
}

func (s *ActionStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	reply, err := s.chat.ChatWithSystem(ctx, actionSystemPrompt, t.Content)
	if err != nil {
		return failed(StageActions, err)
	}

	var proposed []struct {
		Content  string  `json:"content"`
		Priority string  `json:"priority"`
		DueDate  *string `json:"due_date"`
	}
	if err := llm.DecodeJSON(reply, &proposed); err != nil {
		return failed(StageActions, fmt.Errorf("failed to parse action response: %w", err))
	}

	var inputs []storage.ActionInput
	for _, p := range proposed {
		content := strings.TrimSpace(p.Content)
		if content == "" {
			continue
		}
		in := storage.ActionInput{Content: content, Priority: p.Priority}
		if p.DueDate != nil && *p.DueDate != "" {
			if due, err := time.Parse("2006-01-02", *p.DueDate); err == nil {
				in.DueDate = &due
			}
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil
	}

	if err := s.actions.AddMany(ctx, t.ID, inputs); err != nil {
		return failed(StageActions, fmt.Errorf("failed to store actions: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "extracted actions",
		"thought_id", t.ID, "actions", len(inputs))
	return nil
}
