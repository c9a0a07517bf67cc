package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// Snapshot is the on-disk export format. Embeddings are optional on import;
// documents without one are re-embedded before storage.
type Snapshot struct {
	KBName        string                 `json:"kb_name"`
	DocumentCount int                    `json:"document_count"`
	Documents     []vectorstore.Document `json:"documents"`
}

// Export writes every stored chunk, embeddings included, to a JSON file.
func (k *KnowledgeBase) Export(ctx context.Context, path string) (int, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }()

	count, err := k.ExportTo(ctx, f)
	if err != nil {
		return 0, err
	}
	k.logger.Info("exported", "path", path, "documents", count)
	return count, nil
}

// ExportTo streams the snapshot JSON to w.
func (k *KnowledgeBase) ExportTo(ctx context.Context, w io.Writer) (int, error) {
	docs, err := k.store.List(ctx, nil, 0)
	if err != nil {
		return 0, fmt.Errorf("listing documents: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Snapshot{
		KBName:        k.name,
		DocumentCount: len(docs),
		Documents:     docs,
	}); err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}
	return len(docs), nil
}

// Import loads a snapshot file into the knowledge base. Existing ids are
// overwritten.
func (k *KnowledgeBase) Import(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	count, err := k.ImportFrom(ctx, f)
	if err != nil {
		return 0, err
	}
	k.logger.Info("imported", "path", path, "documents", count)
	return count, nil
}

// ImportFrom reads a snapshot from r and stores its documents, re-embedding
// any that arrive without a vector.
func (k *KnowledgeBase) ImportFrom(ctx context.Context, r io.Reader) (int, error) {
	var snapshot Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return 0, fmt.Errorf("decoding snapshot: %w", err)
	}
	if len(snapshot.Documents) == 0 {
		return 0, nil
	}

	if err := k.reembedMissing(ctx, snapshot.Documents); err != nil {
		return 0, err
	}

	if _, err := k.store.Add(ctx, snapshot.Documents); err != nil {
		return 0, fmt.Errorf("storing %d documents: %w", len(snapshot.Documents), err)
	}
	return len(snapshot.Documents), nil
}

func (k *KnowledgeBase) reembedMissing(ctx context.Context, docs []vectorstore.Document) error {
	var missing []int
	var texts []string
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, doc.Content)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	vecs, err := k.batcher.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("re-embedding %d documents: %w", len(missing), err)
	}
	for j, i := range missing {
		docs[i].Embedding = vecs[j]
	}
	return nil
}
