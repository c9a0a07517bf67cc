package chunk

import (
	"regexp"
	"strings"
)

// topLevelDef matches the start of a class- or function-like definition at
// low indentation, covering the common languages the code loader accepts.
var topLevelDef = regexp.MustCompile(`^[ \t]{0,3}(func|def|class|type|fn|impl|function|interface|struct|public|private|protected)\b`)

// Code accumulates whole lines and forces a chunk boundary when a new
// top-level definition begins while the buffer already exceeds half of
// Size. Otherwise it behaves like fixed-size chunking over lines.
type Code struct {
	Size    int
	Overlap int
}

// Split implements Splitter.
func (c *Code) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	var buf []spanRange

	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = emit(chunks, text, buf[0].start, buf[len(buf)-1].end)
		buf = carrySuffix(buf, c.Overlap)
	}

	for _, line := range lines {
		if len(buf) > 0 {
			bufLen := line.end - buf[0].start
			atDef := topLevelDef.MatchString(text[line.start:line.end])
			switch {
			case atDef && buf[len(buf)-1].end-buf[0].start > c.Size/2:
				// New definition with a sufficiently full buffer: do not
				// carry context across the definition boundary.
				chunks = emit(chunks, text, buf[0].start, buf[len(buf)-1].end)
				buf = nil
			case bufLen > c.Size:
				flush()
				if len(buf) > 0 && line.end-buf[0].start > c.Size {
					buf = nil
				}
			}
		}
		buf = append(buf, line)
	}

	if len(buf) > 0 {
		end := buf[len(buf)-1].end
		if len(chunks) == 0 || end > chunks[len(chunks)-1].End {
			chunks = emit(chunks, text, buf[0].start, end)
		}
	}

	return chunks
}

// splitLines returns line spans including their trailing newline, so that
// consecutive spans tile the text without gaps.
func splitLines(text string) []spanRange {
	var spans []spanRange
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			spans = append(spans, spanRange{start: start, end: i + 1})
			start = i + 1
		}
	}
	if start < len(text) {
		spans = append(spans, spanRange{start: start, end: len(text)})
	}
	return spans
}
