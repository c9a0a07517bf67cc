package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

const (
	// DefaultBatchSize caps the number of texts per backend call.
	DefaultBatchSize = 100

	// DefaultWorkers bounds concurrent backend calls.
	DefaultWorkers = 4
)

// Batcher splits large inputs into bounded batches and dispatches them
// concurrently. Results are gathered by batch index, so the output order
// always matches the input order regardless of completion order.
type Batcher struct {
	backend   Embedder
	batchSize int
	workers   int
	logger    log.Logger
}

// NewBatcher wraps backend with batched, bounded-concurrency dispatch.
// Zero batchSize or workers select the defaults.
func NewBatcher(backend Embedder, batchSize, workers int, logger log.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Batcher{backend: backend, batchSize: batchSize, workers: workers, logger: logger}
}

// Embed implements Embedder.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= b.batchSize {
		return b.embedBatch(ctx, texts)
	}

	type span struct{ start, end int }
	var batches []span
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, span{start, end})
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, batch := range batches {
		g.Go(func() error {
			vecs, err := b.embedBatch(gctx, texts[batch.start:batch.end])
			if err != nil {
				return err
			}
			copy(out[batch.start:batch.end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.logger.Debug("embedded texts", "count", len(texts), "batches", len(batches))
	return out, nil
}

func (b *Batcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := b.backend.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyEmbedding, len(vecs), len(texts))
	}
	return vecs, nil
}
