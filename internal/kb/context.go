package kb

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quixotic-maker/jarvis-sub000/internal/retrieval"
)

// DefaultContextChars bounds assembled context when the caller passes no
// budget.
const DefaultContextChars = 4000

// Context retrieves the top results for a query and assembles them into one
// prompt-ready string. Each result is prefixed with a source header carrying
// its similarity. When the budget runs out mid-chunk, the last chunk is
// truncated rather than dropped; the output never exceeds maxChars by more
// than one header.
func (k *KnowledgeBase) Context(ctx context.Context, query string, topK, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}

	results, err := k.Search(ctx, query, retrieval.ModeSemantic, retrieval.Options{K: topK})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, r := range results {
		if b.Len() >= maxChars {
			break
		}

		header := fmt.Sprintf("Source %d (similarity %.2f):\n", i+1, r.Score)
		if i > 0 {
			header = "\n\n" + header
		}
		b.WriteString(header)

		content := r.Document.Content
		if remaining := maxChars - b.Len(); remaining <= 0 {
			break
		} else if len(content) > remaining {
			content = truncateRunes(content, remaining)
		}
		b.WriteString(content)
	}
	return b.String(), nil
}

// truncateRunes cuts s to at most n bytes without splitting a rune. Only
// the cut point is inspected, so invalid bytes earlier in s pass through
// untouched.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
