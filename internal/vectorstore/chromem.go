package vectorstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

// seqKey is a reserved metadata key recording each document's insertion
// sequence inside chromem, so listing order survives a reload from disk.
// It never appears in metadata returned to callers.
const seqKey = "_seq"

// ChromemProvider backs collections with an embedded chromem-go database,
// either purely in-memory or persisted to a directory.
type ChromemProvider struct {
	db       *chromem.DB
	embedder embedding.Embedder
	logger   log.Logger

	mu     sync.Mutex
	stores map[string]*chromemStore
}

// NewChromemProvider creates an in-memory provider. The embedder is only
// consulted for documents added without a precomputed embedding.
func NewChromemProvider(embedder embedding.Embedder, logger log.Logger) *ChromemProvider {
	return newChromemProvider(chromem.NewDB(), embedder, logger)
}

// NewPersistentChromemProvider persists collections under dir.
func NewPersistentChromemProvider(dir string, embedder embedding.Embedder, logger log.Logger) (*ChromemProvider, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector database at %s: %w", dir, err)
	}
	return newChromemProvider(db, embedder, logger), nil
}

func newChromemProvider(db *chromem.DB, embedder embedding.Embedder, logger log.Logger) *ChromemProvider {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ChromemProvider{
		db:       db,
		embedder: embedder,
		logger:   logger,
		stores:   make(map[string]*chromemStore),
	}
}

// Collection implements Provider. Creation is idempotent.
func (p *ChromemProvider) Collection(_ context.Context, name string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[name]; ok {
		return s, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, p.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("%w: collection %q: %v", ErrWriteFailed, name, err)
	}

	s := &chromemStore{
		collection: col,
		order:      make(map[string]int),
		metadata:   make(map[string]map[string]string),
		logger:     p.logger.With("collection", name),
	}
	if col.Count() > 0 {
		if err := p.rebuildSidecar(name, s); err != nil {
			return nil, err
		}
	}
	p.stores[name] = s
	return s, nil
}

// rebuildSidecar reconstructs insertion order and metadata for a collection
// reloaded from a persistent database. chromem exposes no listing API, so
// the documents are recovered through an uncompressed gob export of the
// single collection. Documents written before sequence stamping existed
// sort after the stamped ones, by id.
func (p *ChromemProvider) rebuildSidecar(name string, s *chromemStore) error {
	var buf bytes.Buffer
	if err := p.db.ExportToWriter(&buf, false, "", name); err != nil {
		return fmt.Errorf("%w: reading collection %q: %v", ErrQueryFailed, name, err)
	}

	var snapshot struct {
		Collections map[string]*struct {
			Name      string
			Metadata  map[string]string
			Documents map[string]*chromem.Document
		}
	}
	if err := gob.NewDecoder(&buf).Decode(&snapshot); err != nil {
		return fmt.Errorf("%w: decoding collection %q: %v", ErrQueryFailed, name, err)
	}
	col, ok := snapshot.Collections[name]
	if !ok {
		return nil
	}

	type entry struct {
		id  string
		seq int
	}
	entries := make([]entry, 0, len(col.Documents))
	for id, doc := range col.Documents {
		seq := -1
		if n, err := strconv.Atoi(doc.Metadata[seqKey]); err == nil {
			seq = n
		}
		entries = append(entries, entry{id, seq})

		md := cloneMeta(doc.Metadata)
		delete(md, seqKey)
		s.metadata[id] = md
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.seq < 0) != (b.seq < 0) {
			return b.seq < 0
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.id < b.id
	})
	for i, e := range entries {
		s.order[e.id] = i
	}
	s.seq = len(entries)

	p.logger.Debug("rebuilt collection index", "collection", name, "documents", len(entries))
	return nil
}

// Drop implements Provider.
func (p *ChromemProvider) Drop(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: dropping %q: %v", ErrWriteFailed, name, err)
	}
	delete(p.stores, name)
	return nil
}

// embeddingFunc bridges the Embedder contract to chromem's callback, used
// only when a document arrives without a vector.
func (p *ChromemProvider) embeddingFunc() chromem.EmbeddingFunc {
	if p.embedder == nil {
		return func(context.Context, string) ([]float32, error) {
			return nil, fmt.Errorf("%w: no embedder configured", ErrWriteFailed)
		}
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedding.EmbedOne(ctx, p.embedder, text)
	}
}

// chromemStore adapts one chromem collection to the Store contract. It
// keeps a sidecar of insertion order and metadata because chromem exposes
// no listing API; all mutations flow through this adapter so the sidecar
// stays consistent.
type chromemStore struct {
	collection *chromem.Collection
	logger     log.Logger

	mu       sync.RWMutex
	seq      int
	order    map[string]int
	metadata map[string]map[string]string
}

// Add implements Store.
func (s *chromemStore) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(docs))
	converted := make([]chromem.Document, len(docs))
	var assigned []string
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		ids[i] = doc.ID

		seq, exists := s.order[doc.ID]
		if !exists {
			seq = s.seq
			s.seq++
			s.order[doc.ID] = seq
			assigned = append(assigned, doc.ID)
		}
		stored := cloneMeta(doc.Metadata)
		stored[seqKey] = strconv.Itoa(seq)
		converted[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  stored,
			Embedding: doc.Embedding,
		}
	}

	if err := s.collection.AddDocuments(ctx, converted, 1); err != nil {
		for _, id := range assigned {
			delete(s.order, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	for i, doc := range docs {
		s.metadata[ids[i]] = cloneMeta(doc.Metadata)
	}

	s.logger.Debug("added documents", "count", len(docs))
	return ids, nil
}

// Search implements Store.
func (s *chromemStore) Search(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]SearchHit, error) {
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	// chromem rejects result counts beyond the collection size.
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		sim := r.Similarity
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		hits = append(hits, SearchHit{
			Document: Document{
				ID:        r.ID,
				Content:   r.Content,
				Metadata:  stripSeq(r.Metadata),
				Embedding: r.Embedding,
			},
			Similarity: sim,
		})
	}
	return hits, nil
}

// Get implements Store.
func (s *chromemStore) Get(ctx context.Context, id string) (Document, error) {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Metadata:  stripSeq(doc.Metadata),
		Embedding: doc.Embedding,
	}, nil
}

// Update implements Store. chromem upserts on add, so update is a guarded
// re-add.
func (s *chromemStore) Update(ctx context.Context, doc Document) error {
	if _, err := s.Get(ctx, doc.ID); err != nil {
		return err
	}
	_, err := s.Add(ctx, []Document{doc})
	return err
}

// Delete implements Store.
func (s *chromemStore) Delete(ctx context.Context, ids []string) (int, error) {
	var existing []string
	for _, id := range ids {
		if _, err := s.collection.GetByID(ctx, id); err == nil {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}

	if err := s.collection.Delete(ctx, nil, nil, existing...); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	s.mu.Lock()
	for _, id := range existing {
		delete(s.order, id)
		delete(s.metadata, id)
	}
	s.mu.Unlock()

	return len(existing), nil
}

// DeleteByMetadata implements Store.
func (s *chromemStore) DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error) {
	s.mu.RLock()
	var matched []string
	for id, md := range s.metadata {
		if matchesFilter(md, filter) {
			matched = append(matched, id)
		}
	}
	s.mu.RUnlock()

	return s.Delete(ctx, matched)
}

// List implements Store.
func (s *chromemStore) List(ctx context.Context, filter map[string]string, limit int) ([]Document, error) {
	s.mu.RLock()
	type entry struct {
		id  string
		seq int
	}
	entries := make([]entry, 0, len(s.order))
	for id, seq := range s.order {
		if matchesFilter(s.metadata[id], filter) {
			entries = append(entries, entry{id, seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		doc, err := s.Get(ctx, e.id)
		if err != nil {
			continue // deleted concurrently
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count implements Store.
func (s *chromemStore) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// stripSeq removes the reserved sequence key from metadata read back from
// chromem. The input map belongs to chromem, so a copy is made when needed.
func stripSeq(m map[string]string) map[string]string {
	if _, ok := m[seqKey]; !ok {
		return m
	}
	out := make(map[string]string, len(m)-1)
	for k, v := range m {
		if k != seqKey {
			out[k] = v
		}
	}
	return out
}
