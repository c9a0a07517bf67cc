package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Embedder with a token-bucket limiter, converting an
// unservable wait into ErrRateLimited instead of blocking past the caller's
// deadline.
type RateLimited struct {
	backend Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows callsPerSecond backend calls with the given burst.
func NewRateLimited(backend Embedder, callsPerSecond float64, burst int) *RateLimited {
	return &RateLimited{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

// Embed implements Embedder.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return r.backend.Embed(ctx, texts)
}
