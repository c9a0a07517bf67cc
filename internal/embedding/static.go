package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Static is a deterministic, offline embedder used by tests and local dry
// runs. Vectors are derived from token hashes, so identical texts map to
// identical vectors and texts sharing words land near each other. Not a
// substitute for a real model.
type Static struct {
	// Dimension of produced vectors. Zero means 64.
	Dimension int
}

// Embed implements Embedder.
func (s *Static) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := s.Dimension
	if dim <= 0 {
		dim = 64
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			sum := sha256.Sum256([]byte(token))
			idx := int(binary.BigEndian.Uint32(sum[:4])) % dim
			if idx < 0 {
				idx += dim
			}
			vec[idx]++
		}
		normalize(vec)
		vecs[i] = vec
	}
	return vecs, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		vec[0] = 1
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
