package search

import "testing"

func TestLexicalScore(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		content string
		summary string
		want    float64
	}{
		{
			name:    "no match",
			query:   "lavender",
			content: "the compost pile needs turning",
			want:    0,
		},
		{
			name:    "match capped",
			query:   "lavender",
			content: "lavender cuttings",
			want:    maxLexicalScore,
		},
		{
			name:    "stopword-only query",
			query:   "the and of",
			content: "the compost pile",
			want:    0,
		},
		{
			name:    "empty content",
			query:   "lavender",
			content: "",
			want:    0,
		},
		{
			name:    "summary bonus only",
			query:   "drainage",
			content: "the beds flood after heavy rain",
			summary: "Notes on drainage problems.",
			want:    summaryMatchBonus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexicalScore(tt.query, tt.content, tt.summary)
			if got != tt.want {
				t.Errorf("lexicalScore(%q, %q, %q) = %v, want %v", tt.query, tt.content, tt.summary, got, tt.want)
			}
		})
	}
}

func TestLexicalScore_SparseMatchBelowCap(t *testing.T) {
	// One hit in a long note should land strictly between zero and the cap.
	content := "planted the lavender near the fence then spent the afternoon " +
		"weeding the vegetable beds and hauling mulch around the yard until " +
		"it got dark and started raining so everything else waits for the weekend"
	got := lexicalScore("lavender", content, "")
	if got <= 0 || got >= maxLexicalScore {
		t.Errorf("lexicalScore() = %v, want between 0 and %v", got, maxLexicalScore)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "punctuation split", in: "Half-baked idea: vector search!", want: []string{"half", "baked", "idea", "vector", "search"}},
		{name: "digits kept", in: "route 66", want: []string{"route", "66"}},
		{name: "empty", in: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}
