// Package importer normalizes AI assistant conversation exports into
// conversations of ordered thought segments and persists them.
package importer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Normalization errors. Both are detected before anything is written.
var (
	ErrUnsupportedSource = errors.New("unsupported conversation source")
	ErrUnsupportedFormat = errors.New("unsupported conversation format")
	ErrNoMessages        = errors.New("conversation contains no messages")
)

// Supported sources and formats.
const (
	SourceChatGPT = "chatgpt"
	SourceClaude  = "claude"
	SourceGemini  = "gemini"

	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// SupportedSources returns the conversation sources the normalizer accepts.
func SupportedSources() []string {
	return []string{SourceChatGPT, SourceClaude, SourceGemini}
}

// SupportedFormats returns the export formats the normalizer accepts.
func SupportedFormats() []string {
	return []string{FormatMarkdown, FormatJSON}
}

// Segment roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Segment is one message of a normalized conversation, in transcript order.
type Segment struct {
	Role    string
	Content string
}

// Normalized is a conversation export reduced to a flat ordered transcript.
type Normalized struct {
	Source   string
	Format   string
	Metadata map[string]any
	Segments []Segment
}

// Normalizer converts raw conversation exports into Normalized transcripts.
type Normalizer struct {
	markdown goldmark.Markdown
}

func NewNormalizer() *Normalizer {
	return &Normalizer{markdown: goldmark.New()}
}

// Normalize parses a conversation export. Blank messages are dropped; the
// surviving segments keep their relative order. Returns
// ErrUnsupportedSource, ErrUnsupportedFormat, or ErrNoMessages without
// touching storage.
func (n *Normalizer) Normalize(data []byte, source, format string) (*Normalized, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	format = strings.ToLower(strings.TrimSpace(format))

	switch source {
	case SourceChatGPT, SourceClaude, SourceGemini:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}

	var segments []Segment
	var title string
	var err error
	switch format {
	case FormatMarkdown:
		segments, err = n.parseMarkdown(data, source)
	case FormatJSON:
		segments, title, err = parseJSON(data, source)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	segments = dropBlank(segments)
	if len(segments) == 0 {
		return nil, ErrNoMessages
	}

	metadata := map[string]any{"source": source, "format": format}
	if title != "" {
		metadata["title"] = title
	}

	return &Normalized{
		Source:   source,
		Format:   format,
		Metadata: metadata,
		Segments: segments,
	}, nil
}

// parseMarkdown dispatches on the source's markdown convention. ChatGPT
// exports delimit turns with headings; Claude and Gemini use line prefixes.
func (n *Normalizer) parseMarkdown(data []byte, source string) ([]Segment, error) {
	switch source {
	case SourceChatGPT:
		return n.parseHeadingMarkdown(data, "You:", "ChatGPT:")
	case SourceClaude:
		return parsePrefixMarkdown(data, "Human:", "Assistant:"), nil
	case SourceGemini:
		return parsePrefixMarkdown(data, "User:", "Model:"), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
}

// parseHeadingMarkdown walks the goldmark AST and starts a new segment at
// every heading matching the user or assistant marker. Block content
// between headings belongs to the preceding turn.
func (n *Normalizer) parseHeadingMarkdown(data []byte, userMarker, assistantMarker string) ([]Segment, error) {
	doc := n.markdown.Parser().Parse(gmtext.NewReader(data))

	var segments []Segment
	var current *Segment

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if heading, ok := node.(*ast.Heading); ok {
			headingText := nodeText(heading, data)
			role, marker := "", ""
			switch {
			case strings.HasPrefix(headingText, userMarker):
				role, marker = RoleUser, userMarker
			case strings.HasPrefix(headingText, assistantMarker):
				role, marker = RoleAssistant, assistantMarker
			}
			if role == "" {
				// Headings inside a reply are part of its content.
				if current != nil {
					current.Content += "\n" + headingText + "\n"
				}
				return ast.WalkSkipChildren, nil
			}

			if current != nil {
				segments = append(segments, *current)
			}
			current = &Segment{Role: role}
			// A turn's first line may share the marker heading.
			if rest := strings.TrimSpace(strings.TrimPrefix(headingText, marker)); rest != "" {
				current.Content = rest
			}
			return ast.WalkSkipChildren, nil
		}

		// Only collect text at block level; inline nodes are covered by
		// their parent block's line extraction.
		switch node.(type) {
		case *ast.Paragraph, *ast.CodeBlock, *ast.FencedCodeBlock, *ast.Blockquote, *ast.ListItem:
			if current == nil {
				return ast.WalkContinue, nil
			}
			blockText := nodeText(node, data)
			if blockText != "" {
				if current.Content != "" {
					current.Content += "\n\n"
				}
				current.Content += blockText
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse markdown: %w", err)
	}

	if current != nil {
		segments = append(segments, *current)
	}
	return segments, nil
}

// nodeText collects the raw text of a node and its children.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		default:
			if node.Type() == ast.TypeBlock && node != n {
				lines := node.Lines()
				if lines.Len() > 0 && b.Len() > 0 {
					b.WriteByte('\n')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// parsePrefixMarkdown splits a transcript where turns start with a role
// prefix at the beginning of a line.
func parsePrefixMarkdown(data []byte, userPrefix, assistantPrefix string) []Segment {
	var segments []Segment
	var current *Segment

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, userPrefix):
			if current != nil {
				segments = append(segments, *current)
			}
			current = &Segment{Role: RoleUser, Content: strings.TrimSpace(strings.TrimPrefix(line, userPrefix))}
		case strings.HasPrefix(line, assistantPrefix):
			if current != nil {
				segments = append(segments, *current)
			}
			current = &Segment{Role: RoleAssistant, Content: strings.TrimSpace(strings.TrimPrefix(line, assistantPrefix))}
		default:
			if current != nil {
				current.Content += "\n" + line
			}
		}
	}
	if current != nil {
		segments = append(segments, *current)
	}
	return segments
}

// parseJSON dispatches on the per-assistant JSON export shape. Each source
// has a native export structure and a simple message list fallback. The
// ChatGPT native export also carries a conversation title.
func parseJSON(data []byte, source string) ([]Segment, string, error) {
	switch source {
	case SourceChatGPT:
		return parseChatGPTJSON(data)
	case SourceClaude:
		segments, err := parseClaudeJSON(data)
		return segments, "", err
	case SourceGemini:
		segments, err := parseGeminiJSON(data)
		return segments, "", err
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
}

func parseChatGPTJSON(data []byte) ([]Segment, string, error) {
	// Native export: a mapping graph keyed by node ID.
	var export struct {
		Title   string `json:"title"`
		Mapping map[string]struct {
			Message *struct {
				Author struct {
					Role string `json:"role"`
				} `json:"author"`
				Content struct {
					Parts []any `json:"parts"`
				} `json:"content"`
				CreateTime float64 `json:"create_time"`
			} `json:"message"`
		} `json:"mapping"`
	}
	if err := json.Unmarshal(data, &export); err == nil && len(export.Mapping) > 0 {
		type node struct {
			id         string
			role       string
			content    string
			createTime float64
		}
		var nodes []node
		for id, entry := range export.Mapping {
			if entry.Message == nil {
				continue
			}
			var parts []string
			for _, p := range entry.Message.Content.Parts {
				if s, ok := p.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) == 0 {
				continue
			}
			nodes = append(nodes, node{
				id:         id,
				role:       normalizeRole(entry.Message.Author.Role),
				content:    strings.Join(parts, "\n"),
				createTime: entry.Message.CreateTime,
			})
		}
		// Map iteration order is random; the export's timestamps carry
		// the transcript order.
		sort.Slice(nodes, func(i, j int) bool {
			if nodes[i].createTime != nodes[j].createTime {
				return nodes[i].createTime < nodes[j].createTime
			}
			return nodes[i].id < nodes[j].id
		})
		segments := make([]Segment, 0, len(nodes))
		for _, nd := range nodes {
			segments = append(segments, Segment{Role: nd.role, Content: nd.content})
		}
		return segments, strings.TrimSpace(export.Title), nil
	}

	// Fallback: a plain message list.
	var list []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, "", fmt.Errorf("failed to parse chatgpt export: %w", err)
	}
	segments := make([]Segment, 0, len(list))
	for _, msg := range list {
		segments = append(segments, Segment{Role: normalizeRole(msg.Role), Content: msg.Content})
	}
	return segments, "", nil
}

func parseClaudeJSON(data []byte) ([]Segment, error) {
	type message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	toSegment := func(m message) Segment {
		role := RoleAssistant
		if m.Type == "human" {
			role = RoleUser
		}
		return Segment{Role: role, Content: m.Text}
	}

	// Native export: a wrapper holding one or more conversations.
	var export struct {
		Conversations []struct {
			Messages []message `json:"messages"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal(data, &export); err == nil && len(export.Conversations) > 0 {
		var segments []Segment
		for _, conv := range export.Conversations {
			for _, msg := range conv.Messages {
				segments = append(segments, toSegment(msg))
			}
		}
		return segments, nil
	}

	var list []message
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse claude export: %w", err)
	}
	segments := make([]Segment, 0, len(list))
	for _, msg := range list {
		segments = append(segments, toSegment(msg))
	}
	return segments, nil
}

func parseGeminiJSON(data []byte) ([]Segment, error) {
	// Native export: messages with text parts.
	var export struct {
		Messages []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &export); err == nil && len(export.Messages) > 0 {
		var segments []Segment
		for _, msg := range export.Messages {
			var parts []string
			for _, p := range msg.Parts {
				if p.Text != "" {
					parts = append(parts, p.Text)
				}
			}
			segments = append(segments, Segment{
				Role:    normalizeRole(msg.Role),
				Content: strings.Join(parts, "\n"),
			})
		}
		return segments, nil
	}

	var list []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse gemini export: %w", err)
	}
	segments := make([]Segment, 0, len(list))
	for _, msg := range list {
		segments = append(segments, Segment{Role: normalizeRole(msg.Role), Content: msg.Content})
	}
	return segments, nil
}

// normalizeRole maps assistant-specific role names onto user/assistant.
func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "human":
		return RoleUser
	default:
		return RoleAssistant
	}
}

// dropBlank removes segments whose content is empty after trimming. The
// remaining segments keep their relative order with no index gaps.
func dropBlank(segments []Segment) []Segment {
	kept := segments[:0]
	for _, s := range segments {
		s.Content = strings.TrimSpace(s.Content)
		if s.Content == "" {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
