package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/loader"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// Registry hands out knowledge bases get-or-create style. It replaces
// module-level collection caches with an explicitly injected handle, so no
// global mutable state survives outside it.
type Registry struct {
	provider vectorstore.Provider
	embedder embedding.Embedder
	loaders  *loader.Dispatcher
	logger   log.Logger

	mu    sync.Mutex
	bases map[string]*KnowledgeBase
}

func NewRegistry(provider vectorstore.Provider, embedder embedding.Embedder, loaders *loader.Dispatcher, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		provider: provider,
		embedder: embedder,
		loaders:  loaders,
		logger:   logger,
		bases:    map[string]*KnowledgeBase{},
	}
}

// GetOrCreate returns the named knowledge base, creating it on first use.
// Creation is idempotent: an existing base keeps its original configuration
// and the passed config is ignored.
func (r *Registry) GetOrCreate(ctx context.Context, name string, cfg Config) (*KnowledgeBase, error) {
	if name == "" {
		return nil, fmt.Errorf("knowledge base name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if base, ok := r.bases[name]; ok {
		return base, nil
	}

	store, err := r.provider.Collection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}

	base, err := newKnowledgeBase(name, cfg, store, r.embedder, r.loaders, r.logger)
	if err != nil {
		return nil, err
	}
	r.bases[name] = base
	r.logger.Info("knowledge base created", "name", name, "chunk_size", base.config.ChunkSize, "chunk_overlap", base.config.ChunkOverlap)
	return base, nil
}

// Get returns an already-created knowledge base.
func (r *Registry) Get(name string) (*KnowledgeBase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, ok := r.bases[name]
	if !ok {
		return nil, fmt.Errorf("%w: knowledge base %q", ErrNotFound, name)
	}
	return base, nil
}

// Names lists created knowledge bases in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.bases))
	for name := range r.bases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete drops the backing collection and forgets the knowledge base.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bases[name]; !ok {
		return fmt.Errorf("%w: knowledge base %q", ErrNotFound, name)
	}
	if err := r.provider.Drop(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	delete(r.bases, name)
	r.logger.Info("knowledge base deleted", "name", name)
	return nil
}
