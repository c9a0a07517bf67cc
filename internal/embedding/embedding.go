// Package embedding defines the contract this core needs from an embedding
// backend and the batching used to drive it efficiently.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable indicates the embedding backend cannot be reached.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")

	// ErrRateLimited indicates the backend refused the call due to rate limits.
	ErrRateLimited = errors.New("embedding rate limited")

	// ErrInvalidInput indicates the input cannot be embedded.
	ErrInvalidInput = errors.New("invalid embedding input")

	// ErrEmptyEmbedding indicates the backend returned no vector for a text.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)

// Embedder maps texts to fixed-dimension float vectors. Implementations
// must return exactly one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne is a convenience for single-text callers such as query embedding.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: query embedding", ErrEmptyEmbedding)
	}
	return vecs[0], nil
}
