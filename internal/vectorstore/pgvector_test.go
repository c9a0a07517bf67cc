package vectorstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

// setupPgProvider starts a pgvector-enabled postgres container, applies the
// embedded migrations and returns a connected provider. Container and pool
// teardown is registered on t.
func setupPgProvider(t *testing.T) *PgProvider {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("kb_test"),
		postgres.WithUsername("kb_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "starting postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn), "applying migrations")

	provider, err := NewPgProvider(ctx, dsn, &embedding.Static{Dimension: Dimension}, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(provider.Close)

	return provider
}

func TestPgStoreRoundTrip(t *testing.T) {
	provider := setupPgProvider(t)
	ctx := context.Background()

	store, err := provider.Collection(ctx, "roundtrip")
	require.NoError(t, err)

	ids, err := store.Add(ctx, []Document{
		{Content: "go concurrency patterns with channels", Metadata: map[string]string{"lang": "go"}},
		{ID: "py", Content: "python asyncio event loops", Metadata: map[string]string{"lang": "python"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, "py", ids[1])

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	doc, err := store.Get(ctx, "py")
	require.NoError(t, err)
	assert.Equal(t, "python asyncio event loops", doc.Content)
	assert.Equal(t, "python", doc.Metadata["lang"])
	assert.Len(t, doc.Embedding, Dimension)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgStoreSearch(t *testing.T) {
	provider := setupPgProvider(t)
	ctx := context.Background()
	embedder := &embedding.Static{Dimension: Dimension}

	store, err := provider.Collection(ctx, "search")
	require.NoError(t, err)

	_, err = store.Add(ctx, []Document{
		{ID: "go", Content: "go concurrency patterns with channels", Metadata: map[string]string{"lang": "go"}},
		{ID: "py", Content: "python asyncio event loops", Metadata: map[string]string{"lang": "python"}},
		{ID: "db", Content: "postgres index tuning", Metadata: map[string]string{"lang": "sql"}},
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

	filtered, err := store.Search(ctx, query, 10, map[string]string{"lang": "python"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "py", filtered[0].Document.ID)
}

func TestPgStoreMutations(t *testing.T) {
	provider := setupPgProvider(t)
	ctx := context.Background()

	store, err := provider.Collection(ctx, "mutations")
	require.NoError(t, err)

	_, err = store.Add(ctx, []Document{
		{ID: "a", Content: "one", Metadata: map[string]string{"source": "readme.md"}},
		{ID: "b", Content: "two", Metadata: map[string]string{"source": "readme.md"}},
		{ID: "c", Content: "three", Metadata: map[string]string{"source": "other.md"}},
	})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, Document{ID: "c", Content: "three updated", Metadata: map[string]string{"source": "other.md"}}))
	updated, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "three updated", updated.Content)

	err = store.Update(ctx, Document{ID: "missing", Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := store.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = store.DeleteByMetadata(ctx, map[string]string{"source": "readme.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	docs, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)
}

func TestPgProviderDropIsolatesCollections(t *testing.T) {
	provider := setupPgProvider(t)
	ctx := context.Background()

	first, err := provider.Collection(ctx, "first")
	require.NoError(t, err)
	second, err := provider.Collection(ctx, "second")
	require.NoError(t, err)

	_, err = first.Add(ctx, []Document{{ID: "a", Content: "kept"}})
	require.NoError(t, err)
	_, err = second.Add(ctx, []Document{{ID: "a", Content: "dropped"}})
	require.NoError(t, err)

	require.NoError(t, provider.Drop(ctx, "second"))

	count, err := first.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPgStoreListWithoutLimit(t *testing.T) {
	provider := setupPgProvider(t)
	ctx := context.Background()

	store, err := provider.Collection(ctx, "listing")
	require.NoError(t, err)

	const total = 10050
	const batch = 2010
	for start := 0; start < total; start += batch {
		docs := make([]Document, batch)
		for i := range docs {
			docs[i] = Document{
				ID:      fmt.Sprintf("doc-%05d", start+i),
				Content: "filler",
			}
		}
		_, err := store.Add(ctx, docs)
		require.NoError(t, err)
	}

	docs, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, total)
	assert.Equal(t, "doc-00000", docs[0].ID)
	assert.Equal(t, fmt.Sprintf("doc-%05d", total-1), docs[total-1].ID)

	limited, err := store.List(ctx, nil, 7)
	require.NoError(t, err)
	assert.Len(t, limited, 7)
}
