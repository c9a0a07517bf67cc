package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// Genkit adapts a Genkit ai.Embedder to the Embedder contract. Provider
// selection (Gemini, Ollama) happens where the ai.Embedder is constructed;
// this adapter only translates requests and classifies failures.
type Genkit struct {
	embedder ai.Embedder
}

// NewGenkit wraps a Genkit embedder.
func NewGenkit(embedder ai.Embedder) *Genkit {
	return &Genkit{embedder: embedder}
}

// Embed implements Embedder.
func (g *Genkit) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrInvalidInput, i)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmptyEmbedding, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyEmbedding, i)
		}
		vecs[i] = emb.Embedding
	}
	return vecs, nil
}

// classify maps backend failures onto the package error taxonomy while
// preserving the original error for logs.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate") || strings.Contains(msg, "429") || strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "400"):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
