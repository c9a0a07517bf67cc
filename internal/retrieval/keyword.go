package retrieval

import (
	"strings"
	"unicode"
)

// stopWords are dropped during keyword extraction. Mixed English plus a few
// high-frequency query fillers.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "can": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "how": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {},
	"will": {}, "with": {},
}

// extractKeywords lowercases the query, strips punctuation, and drops stop
// words and single-character tokens. Duplicates are removed, first
// occurrence order preserved.
func extractKeywords(query string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, query)

	seen := make(map[string]struct{})
	var keywords []string
	for _, token := range strings.Fields(cleaned) {
		if len([]rune(token)) <= 1 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

// keywordScore weights keyword coverage against occurrence density:
// 0.6 * (matched / total) + 0.4 * min(occurrences / (total * 3), 1),
// clamped to [0, 1]. Zero iff no keyword appears in the content.
func keywordScore(content string, keywords []string) float32 {
	if len(keywords) == 0 {
		return 0
	}

	lowered := strings.ToLower(content)
	matched := 0
	occurrences := 0
	for _, kw := range keywords {
		n := strings.Count(lowered, kw)
		if n > 0 {
			matched++
			occurrences += n
		}
	}
	if matched == 0 {
		return 0
	}

	coverage := float32(matched) / float32(len(keywords))
	density := float32(occurrences) / float32(len(keywords)*3)
	if density > 1 {
		density = 1
	}

	score := 0.6*coverage + 0.4*density
	if score > 1 {
		score = 1
	}
	return score
}
