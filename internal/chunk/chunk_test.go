package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		size     int
		overlap  int
		wantErr  error
	}{
		{"zero size", StrategyFixed, 0, 0, ErrInvalidSize},
		{"negative size", StrategyFixed, -5, 0, ErrInvalidSize},
		{"negative overlap", StrategyFixed, 100, -1, ErrInvalidOverlap},
		{"overlap equals size", StrategyFixed, 100, 100, ErrInvalidOverlap},
		{"unknown strategy", Strategy("bogus"), 100, 10, ErrUnknownStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.strategy, tt.size, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_DefaultsToFixed(t *testing.T) {
	s, err := New("", 800, 150)
	require.NoError(t, err)
	_, ok := s.(*Fixed)
	assert.True(t, ok)
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, strategy := range []Strategy{StrategyFixed, StrategySentence, StrategyParagraph, StrategyCode} {
		t.Run(string(strategy), func(t *testing.T) {
			s, err := New(strategy, 100, 20)
			require.NoError(t, err)
			assert.Empty(t, s.Split(""))
			assert.Empty(t, s.Split("   \n\t  \n"))
		})
	}
}

func TestFixed_Coverage(t *testing.T) {
	// Paragraph-ish text with scattered sentence ends so snapping engages.
	var b strings.Builder
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "word%d ", i)
		if i%7 == 0 {
			b.WriteString("End of thought. ")
		}
	}
	text := strings.TrimSpace(b.String())

	const size, overlap = 200, 40
	s := &Fixed{Size: size, Overlap: overlap}
	chunks := s.Split(text)
	require.NotEmpty(t, chunks)

	// Union of [Start, End) covers [0, len) with no gaps.
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.LessOrEqual(t, cur.Start, prev.End, "gap between chunk %d and %d", i-1, i)
		got := prev.End - cur.Start
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, overlap, "overlap beyond budget at chunk %d", i)
	}

	for _, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text)
		assert.Less(t, c.Start, c.End)
	}
}

func TestFixed_NoTrailingMicroChunk(t *testing.T) {
	// 13 bytes with size 10: the 5-byte remainder is its own chunk (>= size/2),
	// but a 3-byte remainder must be absorbed.
	s := &Fixed{Size: 10, Overlap: 2}

	chunks := s.Split("aaaaaaaaaaaaa") // 13 bytes
	require.Len(t, chunks, 2)
	assert.Equal(t, 13, chunks[1].End)

	chunks = s.Split("aaaaaaaaaaa") // 11 bytes, remainder 3 < size/2
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 11, chunks[0].End)
}

func TestFixed_SnapsToSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence follows after. Third one closes the set and keeps going for a while longer."
	s := &Fixed{Size: 30, Overlap: 5}

	chunks := s.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	// The first cut lands just after the period closest to offset 30.
	assert.Equal(t, byte('.'), text[chunks[0].End-1])
}

func TestFixed_Deterministic(t *testing.T) {
	text := strings.Repeat("Some sentence with detail. ", 50)
	s := &Fixed{Size: 120, Overlap: 30}

	first := s.Split(text)
	second := s.Split(text)
	assert.Equal(t, first, second)
}

func TestSentence_Scenario(t *testing.T) {
	// From a query corpus of four one-letter sentences: chunk 2 must start
	// inside chunk 1's trailing sentence.
	chunks := (&Sentence{Size: 6, Overlap: 2}).Split("A. B. C. D.")

	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 6, "chunk %q exceeds size", c.Text)
	}
	assert.Greater(t, chunks[1].Start, chunks[0].Start)
	assert.Less(t, chunks[1].Start, chunks[0].End)
}

func TestSentence_CarriesOverlap(t *testing.T) {
	text := "The quick brown fox jumps. A lazy dog sleeps nearby. Rain falls on the roof. Wind moves the trees."
	chunks := (&Sentence{Size: 60, Overlap: 30}).Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].End - chunks[i].Start
		assert.LessOrEqual(t, overlap, 30)
	}
	// Every chunk text matches its offsets.
	for _, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text)
	}
}

func TestSentence_SingleOversizeSentence(t *testing.T) {
	text := "This single sentence runs far past the configured chunk size limit without any internal punctuation at all."
	chunks := (&Sentence{Size: 40, Overlap: 10}).Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestParagraph_Aggregation(t *testing.T) {
	text := "Para one line.\n\nPara two line.\n\nPara three line."
	chunks := (&Paragraph{Size: 35, Overlap: 5}).Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Contains(t, chunks[0].Text, "Para one")
	for _, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text)
	}
}

func TestParagraph_OversizeParagraphSpliced(t *testing.T) {
	big := strings.Repeat("Long paragraph content. ", 20) // ~480 bytes
	text := "Short intro.\n\n" + strings.TrimSpace(big) + "\n\nShort outro."

	chunks := (&Paragraph{Size: 100, Overlap: 20}).Split(text)
	require.Greater(t, len(chunks), 3)

	// Offsets of spliced sub-chunks still index the original text.
	for _, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text)
	}
	assert.Contains(t, chunks[0].Text, "Short intro")
	assert.Contains(t, chunks[len(chunks)-1].Text, "Short outro")
}

func TestCode_BreaksAtTopLevelDefinitions(t *testing.T) {
	var b strings.Builder
	b.WriteString("package demo\n\n")
	b.WriteString("func alpha() {\n\tdoWork()\n\tdoMore()\n\tagain()\n}\n\n")
	b.WriteString("func beta() {\n\tother()\n}\n")
	text := b.String()

	chunks := (&Code{Size: 120, Overlap: 0}).Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	// beta starts its own chunk because alpha's buffer exceeded size/2.
	found := false
	for _, c := range chunks {
		if strings.HasPrefix(c.Text, "func beta()") {
			found = true
		}
	}
	assert.True(t, found, "expected a chunk starting at func beta, got %#v", chunks)
}

func TestCode_FixedFallbackForFlatText(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("x%d := compute(%d)", i, i))
	}
	text := strings.Join(lines, "\n")

	chunks := (&Code{Size: 120, Overlap: 20}).Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text)
	}
}

func TestParseStrategy(t *testing.T) {
	got, err := ParseStrategy("sentence")
	require.NoError(t, err)
	assert.Equal(t, StrategySentence, got)

	got, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyFixed, got)

	_, err = ParseStrategy("semantic")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
