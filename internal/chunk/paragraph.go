package chunk

import "strings"

// Paragraph applies the same accumulation logic as Sentence over
// blank-line-delimited paragraphs. A paragraph individually longer than
// Size is fixed-size-chunked on its own and spliced in place.
type Paragraph struct {
	Size    int
	Overlap int
}

// Split implements Splitter.
func (p *Paragraph) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	fixed := &Fixed{Size: p.Size, Overlap: p.Overlap}

	var chunks []Chunk
	var pending []spanRange

	flushPending := func() {
		if len(pending) == 0 {
			return
		}
		chunks = append(chunks, aggregateSpans(text, pending, p.Size, p.Overlap)...)
		pending = nil
	}

	for _, para := range paragraphs {
		if para.len() > p.Size {
			flushPending()
			// Oversize paragraph: chunk it independently, shifting the
			// sub-chunk offsets back into the source text.
			for _, sub := range fixed.Split(text[para.start:para.end]) {
				sub.Start += para.start
				sub.End += para.start
				chunks = append(chunks, sub)
			}
			continue
		}
		pending = append(pending, para)
	}
	flushPending()

	return chunks
}

// splitParagraphs returns the spans of blank-line-delimited paragraphs,
// excluding surrounding whitespace.
func splitParagraphs(text string) []spanRange {
	var spans []spanRange

	offset := 0
	rest := text
	for {
		idx := strings.Index(rest, "\n\n")
		var para string
		if idx < 0 {
			para = rest
		} else {
			para = rest[:idx]
		}

		start, end := trimSpan(text, offset, offset+len(para))
		if end > start {
			spans = append(spans, spanRange{start: start, end: end})
		}

		if idx < 0 {
			break
		}
		offset += idx + 2
		rest = rest[idx+2:]
	}

	return spans
}

// trimSpan shrinks [start, end) to exclude leading and trailing whitespace.
func trimSpan(text string, start, end int) (int, int) {
	start = skipSpace(text[:end], start)
	end = trailingEnd(text, end)
	if end < start {
		end = start
	}
	return start, end
}
