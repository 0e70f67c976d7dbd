package storage

import (
	"fmt"
	"time"
)

// Thought sources.
const (
	SourceVoiceNote = "voice_note"
	SourceTextNote  = "text_note"
	SourceDocument  = "document"
	SourceImport    = "import"
)

// Tag types.
const (
	TagTypeProject  = "project"
	TagTypeEmotion  = "emotion"
	TagTypeCategory = "category"
	TagTypeCustom   = "custom"
)

// Link relationships.
const (
	RelSimilar       = "similar"
	RelContinuation  = "continuation"
	RelContradiction = "contradiction"
	RelInspiration   = "inspiration"
)

// Action priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// ValidSource reports whether s is a recognized thought source.
func ValidSource(s string) bool {
	switch s {
	case SourceVoiceNote, SourceTextNote, SourceDocument, SourceImport:
		return true
	}
	return false
}

// ValidTagType reports whether t is a recognized tag type.
func ValidTagType(t string) bool {
	switch t {
	case TagTypeProject, TagTypeEmotion, TagTypeCategory, TagTypeCustom:
		return true
	}
	return false
}

// ValidRelationship reports whether r is a recognized link relationship.
func ValidRelationship(r string) bool {
	switch r {
	case RelSimilar, RelContinuation, RelContradiction, RelInspiration:
		return true
	}
	return false
}

// ValidPriority reports whether p is a recognized action priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ThoughtRecord represents a captured thought in the database.
type ThoughtRecord struct {
	ID           string // UUID
	Content      string
	Source       string // voice_note, text_note, document, import
	AudioFile    string // Path to audio file for voice notes
	DocumentFile string // Path to document file for document captures
	Summary      string // AI-generated summary, empty until the reflect stage runs
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TagRecord represents a classification label. Names are globally unique.
type TagRecord struct {
	ID        string // UUID
	Name      string
	Type      string // project, emotion, category, custom
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ThoughtTag represents a tag association with its confidence score.
// Confidence belongs to the association, not the tag.
type ThoughtTag struct {
	Tag        TagRecord
	Confidence float64 // [0,1], assigned by the tagging step
}

// LinkRecord represents a directed relationship between two thoughts.
// A link A->B does not imply B->A exists.
type LinkRecord struct {
	ID              string // UUID
	SourceThoughtID string
	TargetThoughtID string
	Relationship    string  // similar, continuation, contradiction, inspiration
	Strength        float64 // [0,1]
	CreatedAt       time.Time
}

// ActionRecord represents a task extracted from a thought.
type ActionRecord struct {
	ID        string // UUID
	ThoughtID string
	Content   string
	Priority  string // high, medium, low
	DueDate   *time.Time
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationRecord represents an imported conversation batch.
type ConversationRecord struct {
	ID           string // UUID
	Source       string // chatgpt, claude, gemini
	Format       string // markdown, json
	OriginalFile string
	Metadata     map[string]any
	ImportedAt   time.Time
}

// ConversationMember ties a thought to its position within a conversation.
type ConversationMember struct {
	ConversationID string
	ThoughtID      string
	SegmentIndex   int    // 0-based position in original transcript order
	Role           string // user, assistant
	CreatedAt      time.Time
}

// DocumentRecord represents a processed file. It references its originating
// thought but is not cascade-deleted with it.
type DocumentRecord struct {
	ID          string // UUID
	ThoughtID   string
	FilePath    string
	ContentType string
	Content     string // Extracted text, empty until parsed
	Structured  string // JSON representation produced by document parsing
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// parseSQLiteTime parses a DATETIME string as stored by SQLite, falling back
// to RFC3339 for rows written with an explicit timezone.
func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// formatSQLiteTime formats a time for storage in a DATETIME column.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
