package loader

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// HTMLLoader extracts the readable text of an HTML document. It tries a
// readability pass first (main-content extraction) and falls back to a
// stripped full-body text when the page has no identifiable article.
type HTMLLoader struct{}

// Extensions implements Loader.
func (*HTMLLoader) Extensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Load implements Loader.
func (*HTMLLoader) Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	decoded, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, path, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrDecodeFailure, path, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	linkCount := doc.Find("a[href]").Length()
	headingCount := doc.Find("h1,h2,h3,h4,h5,h6").Length()

	content := extractHTMLText(decoded, doc)

	md := map[string]string{
		"format":        "html",
		"line_count":    itoa(countLines(content)),
		"word_count":    itoa(countWords(content)),
		"link_count":    itoa(linkCount),
		"heading_count": itoa(headingCount),
	}
	if title != "" {
		md["title"] = title
	}

	return &Document{Content: content, Metadata: md}, nil
}

// extractHTMLText prefers readability's article extraction and falls back
// to the stripped body text.
func extractHTMLText(decoded string, doc *goquery.Document) string {
	pageURL, _ := url.Parse("file:///document.html")
	if article, err := readability.FromReader(strings.NewReader(decoded), pageURL); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text
		}
	}

	stripped := doc.Clone()
	stripped.Find("script,style,noscript").Remove()
	body := stripped.Find("body")
	text := body.Text()
	if body.Length() == 0 {
		text = stripped.Text()
	}
	return normalizeWhitespace(text)
}

// normalizeWhitespace collapses runs of blank lines and trims each line.
func normalizeWhitespace(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
