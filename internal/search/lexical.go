package search

import (
	"strings"
	"unicode"
)

const (
	lexicalLengthScale = 10.0
	maxLexicalScore    = 0.4
	summaryMatchBonus  = 0.1
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// lexicalScore computes a lightweight keyword relevance score for a thought
// relative to a query. The score is non-negative and capped, so blending it
// additively with a vector score keeps ranking monotonic: a keyword hit can
// only raise a thought, never sink it below an equal pure-semantic match.
func lexicalScore(query, content, summary string) float64 {
	queryTokens := filterStopwords(tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}

	contentTokens := tokenize(content)
	if len(contentTokens) == 0 {
		return 0
	}

	contentFreq := make(map[string]int, len(contentTokens))
	for _, token := range contentTokens {
		contentFreq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += contentFreq[token]
	}

	score := (float64(rawMatches) / (1 + float64(len(contentTokens)))) * lexicalLengthScale

	if summary != "" {
		summaryTokens := tokenize(summary)
		if len(summaryTokens) > 0 {
			summarySet := make(map[string]struct{}, len(summaryTokens))
			for _, token := range summaryTokens {
				summarySet[token] = struct{}{}
			}
			var summaryMatches int
			for _, token := range queryTokens {
				if _, ok := summarySet[token]; ok {
					summaryMatches++
				}
			}
			score += float64(summaryMatches) * summaryMatchBonus
		}
	}

	if score > maxLexicalScore {
		return maxLexicalScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	return strings.Fields(builder.String())
}

func filterStopwords(tokens []string) []string {
	filtered := tokens[:0]
	for _, token := range tokens {
		if _, ok := lexicalStopwords[token]; !ok {
			filtered = append(filtered, token)
		}
	}
	return filtered
}
