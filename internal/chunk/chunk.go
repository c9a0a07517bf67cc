// Package chunk splits normalized document text into overlapping segments
// suitable for embedding and retrieval.
//
// All splitters are deterministic: the same text and configuration always
// produce byte-identical chunk boundaries. Offsets index the original text,
// so every chunk satisfies 0 <= Start < End <= len(text) and consecutive
// chunks from one source overlap by at most the configured overlap.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Strategy selects the segmentation algorithm.
type Strategy string

const (
	// StrategyFixed slides a fixed-size window with sentence-boundary snapping.
	StrategyFixed Strategy = "fixed"

	// StrategySentence aggregates whole sentences up to the target size.
	StrategySentence Strategy = "sentence"

	// StrategyParagraph aggregates blank-line-delimited paragraphs.
	StrategyParagraph Strategy = "paragraph"

	// StrategyCode accumulates lines, breaking at top-level definitions.
	StrategyCode Strategy = "code"
)

// snapWindow is the neighborhood searched around a raw cut point for the
// nearest sentence-ending punctuation.
const snapWindow = 100

var (
	// ErrInvalidSize indicates a non-positive chunk size.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap outside [0, size).
	ErrInvalidOverlap = errors.New("chunk overlap must be in [0, size)")

	// ErrUnknownStrategy indicates an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
)

// Chunk is a bounded, offset-tracked substring of a source document.
// Start and End are byte offsets into the original text.
type Chunk struct {
	Text     string
	Start    int
	End      int
	Metadata map[string]string
}

// Splitter segments text into chunks.
type Splitter interface {
	Split(text string) []Chunk
}

// New constructs a Splitter for the given strategy.
func New(strategy Strategy, size, overlap int) (Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, overlap, size)
	}

	switch strategy {
	case StrategyFixed, "":
		return &Fixed{Size: size, Overlap: overlap}, nil
	case StrategySentence:
		return &Sentence{Size: size, Overlap: overlap}, nil
	case StrategyParagraph:
		return &Paragraph{Size: size, Overlap: overlap}, nil
	case StrategyCode:
		return &Code{Size: size, Overlap: overlap}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// ParseStrategy validates a strategy name from external input.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFixed, StrategySentence, StrategyParagraph, StrategyCode:
		return Strategy(s), nil
	case "":
		return StrategyFixed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// span is a half-open [start, end) range into the source text.
type spanRange struct {
	start, end int
}

func (s spanRange) len() int { return s.end - s.start }

// emit appends a chunk for [start, end) unless its trimmed text is empty.
func emit(chunks []Chunk, text string, start, end int) []Chunk {
	if start >= end {
		return chunks
	}
	piece := text[start:end]
	if strings.TrimSpace(piece) == "" {
		return chunks
	}
	return append(chunks, Chunk{Text: piece, Start: start, End: end})
}

// isSentenceEnd reports whether b terminates a sentence.
func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// runeAlign moves a byte offset backward until it sits on a rune boundary.
func runeAlign(text string, off int) int {
	for off > 0 && off < len(text) && !utf8.RuneStart(text[off]) {
		off--
	}
	return off
}
