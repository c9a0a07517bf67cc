package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

// recordingEmbedder returns vectors encoding each input's global order so
// tests can verify scatter/gather ordering.
type recordingEmbedder struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	failAt  int // fail the Nth call (1-based), 0 = never
	counter int
}

func (r *recordingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.failAt != 0 && call == r.failAt {
		return nil, errors.New("backend exploded")
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		var tag float32
		_, err := fmt.Sscanf(text, "text-%f", &tag)
		if err != nil {
			tag = -1
		}
		vecs[i] = []float32{tag}
	}
	return vecs, nil
}

func TestBatcher_PreservesInputOrder(t *testing.T) {
	backend := &recordingEmbedder{delay: 5 * time.Millisecond}
	b := NewBatcher(backend, 10, 4, log.NewNop())

	texts := make([]string, 95)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vecs, err := b.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, vec := range vecs {
		assert.Equal(t, float32(i), vec[0], "vector %d out of order", i)
	}
	assert.Equal(t, 10, backend.calls)
}

func TestBatcher_SingleBatchPassthrough(t *testing.T) {
	backend := &recordingEmbedder{}
	b := NewBatcher(backend, 100, 4, log.NewNop())

	vecs, err := b.Embed(context.Background(), []string{"text-0", "text-1"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 1, backend.calls)
}

func TestBatcher_EmptyInput(t *testing.T) {
	b := NewBatcher(&recordingEmbedder{}, 10, 2, log.NewNop())

	vecs, err := b.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestBatcher_PropagatesBackendFailure(t *testing.T) {
	backend := &recordingEmbedder{failAt: 2}
	b := NewBatcher(backend, 5, 2, log.NewNop())

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	_, err := b.Embed(context.Background(), texts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestBatcher_CountMismatchDetected(t *testing.T) {
	short := embedFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil // always one vector
	})
	b := NewBatcher(short, 10, 2, log.NewNop())

	_, err := b.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

type embedFunc func(context.Context, []string) ([][]float32, error)

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

func TestEmbedOne(t *testing.T) {
	vec, err := EmbedOne(context.Background(), &Static{Dimension: 16}, "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
}

func TestStatic_Deterministic(t *testing.T) {
	s := &Static{Dimension: 32}

	a, err := s.Embed(context.Background(), []string{"docker containers run workloads"})
	require.NoError(t, err)
	b, err := s.Embed(context.Background(), []string{"docker containers run workloads"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := s.Embed(context.Background(), []string{"an entirely different sentence"})
	require.NoError(t, err)
	assert.NotEqual(t, a[0], c[0])
}

func TestRateLimited_ConvertsDeadline(t *testing.T) {
	rl := NewRateLimited(&Static{}, 0.001, 1)

	// Drain the single burst token.
	_, err := rl.Embed(context.Background(), []string{"first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = rl.Embed(ctx, []string{"second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}
