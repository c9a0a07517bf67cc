package chunk

import (
	"strings"
	"unicode"
)

// Sentence appends whole sentences into a buffer until the next sentence
// would push the buffered span past Size, then flushes the buffer as one
// chunk. The next chunk starts with the trailing sentences of the previous
// buffer whose combined span fits inside Overlap, preserving context
// continuity without exceeding the overlap budget.
type Sentence struct {
	Size    int
	Overlap int
}

// Split implements Splitter.
func (s *Sentence) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	return aggregateSpans(text, sentences, s.Size, s.Overlap)
}

// aggregateSpans implements the shared accumulate/flush/carry loop used by
// the sentence and paragraph strategies. Units must be in source order.
func aggregateSpans(text string, units []spanRange, size, overlap int) []Chunk {
	var chunks []Chunk
	var buf []spanRange

	for _, unit := range units {
		if len(buf) > 0 && unit.end-buf[0].start > size {
			chunks = emit(chunks, text, buf[0].start, buf[len(buf)-1].end)
			buf = carrySuffix(buf, overlap)
			// A carry that leaves no room for the new unit would never
			// drain; start the next chunk fresh instead.
			if len(buf) > 0 && unit.end-buf[0].start > size {
				buf = nil
			}
		}

		if unit.len() > size && len(buf) == 0 {
			// A single unit longer than size becomes its own chunk; it
			// cannot be carried because overlap < size < unit length.
			chunks = emit(chunks, text, unit.start, unit.end)
			continue
		}

		buf = append(buf, unit)
	}

	if len(buf) > 0 {
		end := buf[len(buf)-1].end
		// A buffer holding only carried units is already covered by the
		// previous chunk.
		if len(chunks) == 0 || end > chunks[len(chunks)-1].End {
			chunks = emit(chunks, text, buf[0].start, end)
		}
	}

	return chunks
}

// carrySuffix returns the longest trailing run of units whose combined span
// does not exceed the overlap budget.
func carrySuffix(buf []spanRange, overlap int) []spanRange {
	last := buf[len(buf)-1].end
	carryFrom := len(buf)
	for i := len(buf) - 1; i >= 0; i-- {
		if last-buf[i].start > overlap {
			break
		}
		carryFrom = i
	}
	if carryFrom == len(buf) {
		return nil
	}
	return append([]spanRange(nil), buf[carryFrom:]...)
}

// splitSentences returns the spans of sentences in text. A sentence ends at
// a run of '.', '!' or '?' followed by whitespace or end of input. Leading
// whitespace is excluded from each span.
func splitSentences(text string) []spanRange {
	var spans []spanRange
	n := len(text)
	start := skipSpace(text, 0)

	i := start
	for i < n {
		if isSentenceEnd(text[i]) {
			// Consume the whole punctuation run.
			j := i
			for j < n && isSentenceEnd(text[j]) {
				j++
			}
			if j >= n || unicode.IsSpace(rune(text[j])) {
				if j > start {
					spans = append(spans, spanRange{start: start, end: j})
				}
				start = skipSpace(text, j)
				i = start
				continue
			}
			i = j
			continue
		}
		i++
	}

	if start < n {
		end := trailingEnd(text, n)
		if end > start {
			spans = append(spans, spanRange{start: start, end: end})
		}
	}

	return spans
}

func skipSpace(text string, i int) int {
	for i < len(text) && unicode.IsSpace(rune(text[i])) {
		i++
	}
	return i
}

// trailingEnd trims trailing whitespace from the final sentence span.
func trailingEnd(text string, end int) int {
	for end > 0 && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	return end
}
