package loader

import (
	"regexp"
	"strings"
)

var mdLinkPattern = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)

// MarkdownLoader handles Markdown documents and records their structural
// shape (headings, code blocks, links) as metadata.
type MarkdownLoader struct{}

// Extensions implements Loader.
func (*MarkdownLoader) Extensions() []string {
	return []string{".md", ".markdown", ".mdown"}
}

// Load implements Loader.
func (*MarkdownLoader) Load(path string) (*Document, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}

	headings := 0
	fences := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			headings++
		}
		if strings.HasPrefix(trimmed, "```") {
			fences++
		}
	}

	return &Document{
		Content: content,
		Metadata: map[string]string{
			"format":           "markdown",
			"line_count":       itoa(countLines(content)),
			"word_count":       itoa(countWords(content)),
			"heading_count":    itoa(headings),
			"code_block_count": itoa(fences / 2),
			"link_count":       itoa(len(mdLinkPattern.FindAllString(content, -1))),
		},
	}, nil
}
