package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	provider := NewChromemProvider(&embedding.Static{}, log.NewNop())
	store, err := provider.Collection(context.Background(), "test")
	require.NoError(t, err)
	return store
}

func TestAddAssignsIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Add(ctx, []Document{
		{Content: "first document"},
		{ID: "fixed-id", Content: "second document"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	assert.NotEmpty(t, ids[0])
	assert.Equal(t, "fixed-id", ids[1])

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddUpsertsExistingID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, []Document{{ID: "doc", Content: "original"}})
	require.NoError(t, err)
	_, err = store.Add(ctx, []Document{{ID: "doc", Content: "replaced"}})
	require.NoError(t, err)

	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "replaced", doc.Content)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	embedder := &embedding.Static{}

	_, err := store.Add(ctx, []Document{
		{ID: "go", Content: "go concurrency patterns with channels"},
		{ID: "py", Content: "python asyncio event loops"},
		{ID: "db", Content: "postgres index tuning"},
	})
	require.NoError(t, err)

	query, err := embedding.EmbedOne(ctx, embedder, "go concurrency patterns with channels")
	require.NoError(t, err)

	hits, err := store.Search(ctx, query, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "go", hits[0].Document.ID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Similarity, hits[i-1].Similarity)
	}
	for _, hit := range hits {
		assert.GreaterOrEqual(t, hit.Similarity, float32(0))
		assert.LessOrEqual(t, hit.Similarity, float32(1))
	}
}

func TestSearchWithMetadataFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	embedder := &embedding.Static{}

	_, err := store.Add(ctx, []Document{
		{ID: "a", Content: "shared topic", Metadata: map[string]string{"lang": "go"}},
		{ID: "b", Content: "shared topic too", Metadata: map[string]string{"lang": "rust"}},
	})
	require.NoError(t, err)

	query, err := embedding.EmbedOne(ctx, embedder, "shared topic")
	require.NoError(t, err)

	hits, err := store.Search(ctx, query, 10, map[string]string{"lang": "go"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Document.ID)
}

func TestSearchKLargerThanCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	embedder := &embedding.Static{}

	_, err := store.Add(ctx, []Document{{ID: "only", Content: "single document"}})
	require.NoError(t, err)

	query, err := embedding.EmbedOne(ctx, embedder, "single document")
	require.NoError(t, err)

	hits, err := store.Search(ctx, query, 50, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpdateMissingDocument(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), Document{ID: "missing", Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCountsOnlyExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, []Document{
		{ID: "a", Content: "one"},
		{ID: "b", Content: "two"},
	})
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteByMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, []Document{
		{ID: "a", Content: "one", Metadata: map[string]string{"source": "readme.md"}},
		{ID: "b", Content: "two", Metadata: map[string]string{"source": "readme.md"}},
		{ID: "c", Content: "three", Metadata: map[string]string{"source": "other.md"}},
	})
	require.NoError(t, err)

	deleted, err := store.DeleteByMetadata(ctx, map[string]string{"source": "readme.md"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	docs, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, []Document{
		{ID: "first", Content: "1"},
		{ID: "second", Content: "2"},
		{ID: "third", Content: "3"},
	})
	require.NoError(t, err)

	docs, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0].ID)
	assert.Equal(t, "second", docs[1].ID)
	assert.Equal(t, "third", docs[2].ID)

	limited, err := store.List(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestProviderDrop(t *testing.T) {
	provider := NewChromemProvider(&embedding.Static{}, log.NewNop())
	ctx := context.Background()

	store, err := provider.Collection(ctx, "dropme")
	require.NoError(t, err)
	_, err = store.Add(ctx, []Document{{ID: "a", Content: "x"}})
	require.NoError(t, err)

	require.NoError(t, provider.Drop(ctx, "dropme"))

	fresh, err := provider.Collection(ctx, "dropme")
	require.NoError(t, err)
	count, err := fresh.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMatchesFilter(t *testing.T) {
	metadata := map[string]string{"lang": "go", "kind": "doc"}

	assert.True(t, matchesFilter(metadata, nil))
	assert.True(t, matchesFilter(metadata, map[string]string{"lang": "go"}))
	assert.True(t, matchesFilter(metadata, map[string]string{"lang": "go", "kind": "doc"}))
	assert.False(t, matchesFilter(metadata, map[string]string{"lang": "rust"}))
	assert.False(t, matchesFilter(metadata, map[string]string{"extra": "x"}))
}

func TestL2Similarity(t *testing.T) {
	assert.Equal(t, float32(1), l2Similarity(0))
	assert.Equal(t, float32(0.5), l2Similarity(1))
	assert.Equal(t, float32(0), l2Similarity(2))
	assert.Equal(t, float32(0), l2Similarity(3.5))
}

func TestPersistentReopenKeepsListing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	provider, err := NewPersistentChromemProvider(dir, &embedding.Static{}, log.NewNop())
	require.NoError(t, err)
	store, err := provider.Collection(ctx, "notes")
	require.NoError(t, err)

	_, err = store.Add(ctx, []Document{
		{ID: "first", Content: "one", Metadata: map[string]string{"source": "a.txt"}},
		{ID: "second", Content: "two", Metadata: map[string]string{"source": "b.txt"}},
		{ID: "third", Content: "three", Metadata: map[string]string{"source": "a.txt"}},
	})
	require.NoError(t, err)

	reopened, err := NewPersistentChromemProvider(dir, &embedding.Static{}, log.NewNop())
	require.NoError(t, err)
	fresh, err := reopened.Collection(ctx, "notes")
	require.NoError(t, err)

	count, err := fresh.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	docs, err := fresh.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0].ID)
	assert.Equal(t, "second", docs[1].ID)
	assert.Equal(t, "third", docs[2].ID)

	filtered, err := fresh.List(ctx, map[string]string{"source": "a.txt"}, 0)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	deleted, err := fresh.DeleteByMetadata(ctx, map[string]string{"source": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err = fresh.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPersistentReopenContinuesSequence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	provider, err := NewPersistentChromemProvider(dir, &embedding.Static{}, log.NewNop())
	require.NoError(t, err)
	store, err := provider.Collection(ctx, "notes")
	require.NoError(t, err)
	_, err = store.Add(ctx, []Document{{ID: "old", Content: "persisted"}})
	require.NoError(t, err)

	reopened, err := NewPersistentChromemProvider(dir, &embedding.Static{}, log.NewNop())
	require.NoError(t, err)
	fresh, err := reopened.Collection(ctx, "notes")
	require.NoError(t, err)
	_, err = fresh.Add(ctx, []Document{{ID: "new", Content: "added after reopen"}})
	require.NoError(t, err)

	docs, err := fresh.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "old", docs[0].ID)
	assert.Equal(t, "new", docs[1].ID)
}

func TestMetadataRoundTripStaysClean(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := map[string]string{"source": "a.txt", "chunk_index": "0"}
	_, err := store.Add(ctx, []Document{{ID: "doc", Content: "body", Metadata: want}})
	require.NoError(t, err)

	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, want, doc.Metadata)

	query, err := embedding.EmbedOne(ctx, &embedding.Static{}, "body")
	require.NoError(t, err)
	hits, err := store.Search(ctx, query, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, want, hits[0].Document.Metadata)
}
