package enrich

import (
	"context"
	"fmt"
	"os"

	"mirza-mirror/internal/contextutil"
	"mirza-mirror/internal/storage"
)

// TranscribeStep fills in the text of a voice note by transcribing its
// audio file.
type TranscribeStep struct {
	transcriber Transcriber
	thoughts    storage.ThoughtStore
}

func NewTranscribeStep(transcriber Transcriber, thoughts storage.ThoughtStore) *TranscribeStep {
	return &TranscribeStep{transcriber: transcriber, thoughts: thoughts}
}

func (s *TranscribeStep) Stage() Stage {
	return StageTranscribe
}

func (s *TranscribeStep) Applies(t *storage.ThoughtRecord) bool {
	return t.Source == storage.SourceVoiceNote && t.AudioFile != "" && !hasText(t)
}

func (s *TranscribeStep) Run(ctx context.Context, t *storage.ThoughtRecord) error {
	audio, err := os.ReadFile(t.AudioFile)
	if err != nil {
		return failed(StageTranscribe, fmt.Errorf("failed to read audio file: %w", err))
	}

	text, err := s.transcriber.Transcribe(ctx, t.AudioFile, audio)
	if err != nil {
		return failed(StageTranscribe, err)
	}

	updated, err := s.thoughts.Patch(ctx, t.ID, storage.ThoughtPatch{Content: &text})
	if err != nil {
		return failed(StageTranscribe, fmt.Errorf("failed to store transcript: %w", err))
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "transcribed voice note",
		"thought_id", t.ID, "chars", len(text))

	t.Content = updated.Content
	t.UpdatedAt = updated.UpdatedAt
	return nil
}
