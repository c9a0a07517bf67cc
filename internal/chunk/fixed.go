package chunk

import "strings"

// Fixed slides a window of Size bytes over the text, snapping each cut to
// the nearest sentence-ending punctuation within snapWindow bytes. The next
// window starts Overlap bytes before the previous cut, so consecutive chunks
// overlap by exactly Overlap except at the final chunk. A tail shorter than
// Size/2 is absorbed into the preceding chunk instead of being emitted as a
// trailing micro-chunk.
type Fixed struct {
	Size    int
	Overlap int
}

// Split implements Splitter.
func (f *Fixed) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	n := len(text)

	var chunks []Chunk
	start := 0
	for start < n {
		if n-start <= f.Size {
			chunks = emit(chunks, text, start, n)
			break
		}

		end := f.snap(text, start, start+f.Size)

		next := end - f.Overlap
		if next <= start {
			// Degenerate window (snap moved the cut behind the overlap);
			// fall back to a hard cut to guarantee forward progress.
			end = runeAlign(text, start+f.Size)
			next = end - f.Overlap
			if next <= start {
				next = end
			}
		}

		if n-next < f.Size/2 {
			// The remainder would be a micro-chunk; extend to the end.
			chunks = emit(chunks, text, start, n)
			break
		}

		chunks = emit(chunks, text, start, end)
		start = next
	}

	return chunks
}

// snap searches ±snapWindow around the raw cut point for sentence-ending
// punctuation and returns the boundary just after the closest one,
// preferring the earlier position on ties. Without a candidate it returns
// the raw cut aligned to a rune boundary.
func (f *Fixed) snap(text string, start, raw int) int {
	lo := raw - snapWindow
	if lo <= start {
		lo = start + 1
	}
	hi := raw + snapWindow
	if hi > len(text) {
		hi = len(text)
	}

	best := -1
	bestDist := snapWindow + 1
	for i := lo; i < hi; i++ {
		if !isSentenceEnd(text[i]) {
			continue
		}
		boundary := i + 1
		dist := boundary - raw
		if dist < 0 {
			dist = -dist
		}
		// Strict < keeps the earlier boundary on equal distance.
		if dist < bestDist {
			best = boundary
			bestDist = dist
		}
	}

	if best > start {
		return best
	}
	return runeAlign(text, raw)
}
