// Package kb is the top-level façade over the ingestion and retrieval
// pipeline. A KnowledgeBase binds one named vector store collection to one
// chunking configuration; the Registry hands them out get-or-create style.
package kb

import (
	"context"
	"errors"
	"fmt"

	"github.com/quixotic-maker/jarvis-sub000/internal/chunk"
	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/loader"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
	"github.com/quixotic-maker/jarvis-sub000/internal/retrieval"
	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// Defaults for knowledge bases created without explicit chunking settings.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 150
)

var (
	// ErrNotFound reports a missing knowledge base or document.
	ErrNotFound = errors.New("not found")
)

// Config describes a knowledge base at creation time. Zero values take the
// package defaults.
type Config struct {
	Description  string
	ChunkSize    int
	ChunkOverlap int
	Strategy     chunk.Strategy
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 4
	}
	if c.Strategy == "" {
		c.Strategy = chunk.StrategyFixed
	}
	return c
}

// Stats summarizes one knowledge base.
type Stats struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	DocumentCount int            `json:"document_count"`
	ChunkSize     int            `json:"chunk_size"`
	ChunkOverlap  int            `json:"chunk_overlap"`
	TotalBytes    int            `json:"total_content_bytes"`
	FileTypes     map[string]int `json:"file_types,omitempty"`
}

// KnowledgeBase is a named document set bound to one collection.
type KnowledgeBase struct {
	name     string
	config   Config
	splitter chunk.Splitter
	store    vectorstore.Store
	engine   *retrieval.Engine
	embedder embedding.Embedder
	batcher  *embedding.Batcher
	loaders  *loader.Dispatcher
	logger   log.Logger
}

func newKnowledgeBase(name string, cfg Config, store vectorstore.Store, embedder embedding.Embedder, loaders *loader.Dispatcher, logger log.Logger) (*KnowledgeBase, error) {
	cfg = cfg.withDefaults()

	splitter, err := chunk.New(cfg.Strategy, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring chunker for %q: %w", name, err)
	}

	return &KnowledgeBase{
		name:     name,
		config:   cfg,
		splitter: splitter,
		store:    store,
		engine:   retrieval.NewEngine(store, embedder, logger.With("kb", name)),
		embedder: embedder,
		batcher:  embedding.NewBatcher(embedder, 0, 0, logger),
		loaders:  loaders,
		logger:   logger.With("kb", name),
	}, nil
}

// Name returns the knowledge base name.
func (k *KnowledgeBase) Name() string { return k.name }

// Search runs one retrieval query against this knowledge base.
func (k *KnowledgeBase) Search(ctx context.Context, query string, mode retrieval.Mode, opts retrieval.Options) ([]retrieval.Result, error) {
	return k.engine.Search(ctx, query, mode, opts)
}

// List returns stored chunks matching the filter in insertion order.
func (k *KnowledgeBase) List(ctx context.Context, filter map[string]string, limit int) ([]vectorstore.Document, error) {
	return k.store.List(ctx, filter, limit)
}

// Get fetches one stored chunk by id.
func (k *KnowledgeBase) Get(ctx context.Context, id string) (vectorstore.Document, error) {
	doc, err := k.store.Get(ctx, id)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return vectorstore.Document{}, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return doc, err
}

// Update replaces a stored chunk. Content changes without a new embedding
// trigger re-embedding so the vector stays consistent with the text.
func (k *KnowledgeBase) Update(ctx context.Context, doc vectorstore.Document) error {
	if len(doc.Embedding) == 0 && doc.Content != "" && k.embedder != nil {
		vec, err := embedding.EmbedOne(ctx, k.embedder, doc.Content)
		if err != nil {
			return fmt.Errorf("re-embedding document %s: %w", doc.ID, err)
		}
		doc.Embedding = vec
	}

	err := k.store.Update(ctx, doc)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return fmt.Errorf("%w: document %s", ErrNotFound, doc.ID)
	}
	return err
}

// Delete removes chunks by id, returning how many existed.
func (k *KnowledgeBase) Delete(ctx context.Context, ids []string) (int, error) {
	return k.store.Delete(ctx, ids)
}

// DeleteByMetadata removes every chunk whose metadata contains all the
// filter pairs, returning the count. An empty filter matches everything.
func (k *KnowledgeBase) DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error) {
	return k.store.DeleteByMetadata(ctx, filter)
}

// Stats reports document count, stored content size and per-file-type
// counts alongside the chunking configuration.
func (k *KnowledgeBase) Stats(ctx context.Context) (Stats, error) {
	docs, err := k.store.List(ctx, nil, 0)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Name:          k.name,
		Description:   k.config.Description,
		DocumentCount: len(docs),
		ChunkSize:     k.config.ChunkSize,
		ChunkOverlap:  k.config.ChunkOverlap,
	}
	for _, doc := range docs {
		stats.TotalBytes += len(doc.Content)
		if ext := doc.Metadata["file_ext"]; ext != "" {
			if stats.FileTypes == nil {
				stats.FileTypes = map[string]int{}
			}
			stats.FileTypes[ext]++
		}
	}
	return stats, nil
}

// Clear removes every chunk in the collection.
func (k *KnowledgeBase) Clear(ctx context.Context) (int, error) {
	return k.store.DeleteByMetadata(ctx, nil)
}
