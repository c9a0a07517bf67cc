package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

// Dimension is the embedding width of the pgvector schema. It matches the
// default output of the supported embedding models; changing it requires a
// schema migration.
const Dimension = 768

// PgProvider backs collections with a PostgreSQL + pgvector table. All
// collections share one table keyed by (collection, id); similarity uses
// L2 distance mapped to max(0, 1 - d/2).
type PgProvider struct {
	pool     *pgxpool.Pool
	embedder embedding.Embedder
	logger   log.Logger
}

// NewPgProvider connects a pool with pgvector type support registered.
func NewPgProvider(ctx context.Context, dsn string, embedder embedding.Embedder, logger log.Logger) (*PgProvider, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &PgProvider{pool: pool, embedder: embedder, logger: logger}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PgProvider) Close() { p.pool.Close() }

// Ping verifies database connectivity, for readiness checks.
func (p *PgProvider) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Collection implements Provider. The shared table makes creation a no-op
// beyond handing out a scoped store.
func (p *PgProvider) Collection(_ context.Context, name string) (Store, error) {
	return &pgStore{
		pool:       p.pool,
		collection: name,
		embedder:   p.embedder,
		logger:     p.logger.With("collection", name),
	}, nil
}

// Drop implements Provider.
func (p *PgProvider) Drop(ctx context.Context, name string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kb_documents WHERE collection = $1`, name); err != nil {
		return fmt.Errorf("%w: dropping %q: %v", ErrWriteFailed, name, err)
	}
	return nil
}

type pgStore struct {
	pool       *pgxpool.Pool
	collection string
	embedder   embedding.Embedder
	logger     log.Logger
}

// Add implements Store. Documents without embeddings are embedded here if
// an embedder is configured, otherwise stored unembedded (excluded from
// semantic search until updated).
func (s *pgStore) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	if s.embedder != nil {
		if err := s.fillEmbeddings(ctx, docs); err != nil {
			return nil, err
		}
	}

	batch := &pgx.Batch{}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		ids[i] = doc.ID

		metadata, err := json.Marshal(orEmpty(doc.Metadata))
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling metadata for %s: %v", ErrWriteFailed, doc.ID, err)
		}

		var vec *pgvector.Vector
		if len(doc.Embedding) > 0 {
			v := pgvector.NewVector(doc.Embedding)
			vec = &v
		}

		batch.Queue(`
			INSERT INTO kb_documents (collection, id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (collection, id) DO UPDATE
			SET content = EXCLUDED.content,
			    metadata = EXCLUDED.metadata,
			    embedding = EXCLUDED.embedding`,
			s.collection, doc.ID, doc.Content, metadata, vec)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range docs {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	}

	s.logger.Debug("added documents", "count", len(docs))
	return ids, nil
}

func (s *pgStore) fillEmbeddings(ctx context.Context, docs []Document) error {
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

	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embedding %d documents: %v", ErrWriteFailed, len(missing), err)
	}
	for j, i := range missing {
		docs[i].Embedding = vecs[j]
	}
	return nil
}

// Search implements Store.
func (s *pgStore) Search(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		if filterJSON, err = json.Marshal(filter); err != nil {
			return nil, fmt.Errorf("%w: marshaling filter: %v", ErrQueryFailed, err)
		}
	}

	query := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT id, content, metadata, embedding, embedding <-> $1 AS distance
		FROM kb_documents
		WHERE collection = $2
		  AND embedding IS NOT NULL
		  AND ($3::jsonb IS NULL OR metadata @> $3)
		ORDER BY embedding <-> $1
		LIMIT $4`,
		query, s.collection, filterJSON, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			doc      Document
			raw      []byte
			vec      pgvector.Vector
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &raw, &vec, &distance); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrQueryFailed, err)
		}
		if err := json.Unmarshal(raw, &doc.Metadata); err != nil {
			s.logger.Warn("unparseable metadata", "id", doc.ID, "error", err)
			doc.Metadata = map[string]string{}
		}
		doc.Embedding = vec.Slice()
		hits = append(hits, SearchHit{Document: doc, Similarity: l2Similarity(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return hits, nil
}

// l2Similarity maps an L2 distance onto [0, 1].
func l2Similarity(distance float64) float32 {
	sim := 1 - distance/2
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return float32(sim)
}

// Get implements Store.
func (s *pgStore) Get(ctx context.Context, id string) (Document, error) {
	var (
		doc Document
		raw []byte
		vec *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, content, metadata, embedding
		FROM kb_documents
		WHERE collection = $1 AND id = $2`,
		s.collection, id).Scan(&doc.ID, &doc.Content, &raw, &vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	if err := json.Unmarshal(raw, &doc.Metadata); err != nil {
		doc.Metadata = map[string]string{}
	}
	if vec != nil {
		doc.Embedding = vec.Slice()
	}
	return doc, nil
}

// Update implements Store.
func (s *pgStore) Update(ctx context.Context, doc Document) error {
	if _, err := s.Get(ctx, doc.ID); err != nil {
		return err
	}
	_, err := s.Add(ctx, []Document{doc})
	return err
}

// Delete implements Store.
func (s *pgStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM kb_documents WHERE collection = $1 AND id = ANY($2)`,
		s.collection, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteByMetadata implements Store.
func (s *pgStore) DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error) {
	filterJSON, err := json.Marshal(orEmpty(filter))
	if err != nil {
		return 0, fmt.Errorf("%w: marshaling filter: %v", ErrWriteFailed, err)
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM kb_documents WHERE collection = $1 AND metadata @> $2`,
		s.collection, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return int(tag.RowsAffected()), nil
}

// List implements Store. Insertion order follows the seq column.
func (s *pgStore) List(ctx context.Context, filter map[string]string, limit int) ([]Document, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		if filterJSON, err = json.Marshal(filter); err != nil {
			return nil, fmt.Errorf("%w: marshaling filter: %v", ErrQueryFailed, err)
		}
	}
	// LIMIT NULL means no limit.
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, metadata, embedding
		FROM kb_documents
		WHERE collection = $1 AND ($2::jsonb IS NULL OR metadata @> $2)
		ORDER BY seq
		LIMIT $3`,
		s.collection, filterJSON, limitArg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc Document
			raw []byte
			vec *pgvector.Vector
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &raw, &vec); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrQueryFailed, err)
		}
		if err := json.Unmarshal(raw, &doc.Metadata); err != nil {
			doc.Metadata = map[string]string{}
		}
		if vec != nil {
			doc.Embedding = vec.Slice()
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return docs, nil
}

// Count implements Store.
func (s *pgStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM kb_documents WHERE collection = $1`,
		s.collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return count, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
