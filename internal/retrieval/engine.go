// Package retrieval turns a query into a ranked, de-duplicated result list.
// It combines semantic search against the vector store with locally scored
// keyword search, and can fuse or rerank the two signals.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
	ModeRerank   Mode = "rerank"
)

// ErrInvalidMode reports an unrecognized retrieval mode.
var ErrInvalidMode = fmt.Errorf("invalid retrieval mode")

// ParseMode validates a mode string. Empty selects semantic.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeSemantic, nil
	case ModeSemantic, ModeKeyword, ModeHybrid, ModeRerank:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Result is one ranked hit. Rank is 1-based and dense within a response.
type Result struct {
	Document vectorstore.Document `json:"document"`
	Score    float32              `json:"score"`
	Rank     int                  `json:"rank"`
	Mode     Mode                 `json:"mode"`
}

// Options tune a single query.
type Options struct {
	// K is the page size. Zero means 5.
	K int
	// Filter restricts candidates to documents whose metadata contains
	// every listed pair.
	Filter map[string]string
	// Threshold drops results scoring below it. Applied after fusion
	// and reranking.
	Threshold float32
}

func (o Options) k() int {
	if o.K <= 0 {
		return 5
	}
	return o.K
}

const (
	// rrfK dampens the rank contribution in reciprocal rank fusion.
	rrfK = 60
	// poolFactor over-fetches vector search results to build the
	// keyword-scorable candidate pool.
	poolFactor = 20
)

// Engine executes queries against one collection.
type Engine struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	logger   log.Logger
}

func NewEngine(store vectorstore.Store, embedder embedding.Embedder, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{store: store, embedder: embedder, logger: logger}
}

// Search runs one query. An embedding or store failure aborts the whole
// query; there is no degraded partial result.
func (e *Engine) Search(ctx context.Context, query string, mode Mode, opts Options) ([]Result, error) {
	var (
		results []Result
		err     error
	)
	switch mode {
	case ModeSemantic, "":
		results, err = e.semantic(ctx, query, opts.k(), opts.Filter)
	case ModeKeyword:
		results, err = e.keyword(ctx, query, opts.k(), opts.Filter)
	case ModeHybrid:
		results, err = e.hybrid(ctx, query, opts.k(), opts.Filter)
	case ModeRerank:
		results, err = e.rerank(ctx, query, opts.k(), opts.Filter)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err != nil {
		return nil, err
	}

	results = finalize(results, mode, opts.k(), opts.Threshold)
	e.logger.Debug("search completed", "mode", mode, "results", len(results))
	return results, nil
}

// finalize applies the threshold, truncates to k and assigns dense ranks.
func finalize(results []Result, mode Mode, k int, threshold float32) []Result {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	if len(kept) > k {
		kept = kept[:k]
	}
	if mode == "" {
		mode = ModeSemantic
	}
	for i := range kept {
		kept[i].Rank = i + 1
		kept[i].Mode = mode
	}
	return kept
}

func (e *Engine) semantic(ctx context.Context, query string, k int, filter map[string]string) ([]Result, error) {
	vec, err := embedding.EmbedOne(ctx, e.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := e.store.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{Document: hit.Document, Score: hit.Similarity})
	}
	return results, nil
}

// keyword scores a candidate pool lexically. The pool comes from the vector
// store's own search over-fetched at poolFactor times the page size; with no
// embedder configured it falls back to listing the collection.
func (e *Engine) keyword(ctx context.Context, query string, k int, filter map[string]string) ([]Result, error) {
	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	pool, err := e.keywordPool(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, doc := range pool {
		score := keywordScore(doc.Content, keywords)
		if score == 0 {
			continue
		}
		results = append(results, Result{Document: doc, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (e *Engine) keywordPool(ctx context.Context, query string, k int, filter map[string]string) ([]vectorstore.Document, error) {
	if e.embedder == nil {
		docs, err := e.store.List(ctx, filter, poolFactor*k)
		if err != nil {
			return nil, fmt.Errorf("listing keyword candidates: %w", err)
		}
		return docs, nil
	}

	vec, err := embedding.EmbedOne(ctx, e.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := e.store.Search(ctx, vec, poolFactor*k, filter)
	if err != nil {
		return nil, fmt.Errorf("fetching keyword candidates: %w", err)
	}
	docs := make([]vectorstore.Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, hit.Document)
	}
	return docs, nil
}

// hybrid runs semantic and keyword searches concurrently over a widened
// candidate count, then merges them with reciprocal rank fusion.
func (e *Engine) hybrid(ctx context.Context, query string, k int, filter map[string]string) ([]Result, error) {
	var semanticList, keywordList []Result

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semanticList, err = e.semantic(ctx, query, 2*k, filter)
		return err
	})
	g.Go(func() error {
		var err error
		keywordList, err = e.keyword(ctx, query, 2*k, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuse(semanticList, keywordList), nil
}

// fuse merges ranked lists with reciprocal rank fusion. Each list contributes
// 1/(rrfK + rank) per item; ties break toward semantic list order, with
// keyword-only documents after all semantic ones.
func fuse(semanticList, keywordList []Result) []Result {
	type fused struct {
		doc   vectorstore.Document
		score float32
		seen  int
	}

	order := make(map[string]*fused)
	var merged []*fused
	add := func(doc vectorstore.Document, rank int) {
		f, ok := order[doc.ID]
		if !ok {
			f = &fused{doc: doc, seen: len(merged)}
			order[doc.ID] = f
			merged = append(merged, f)
		}
		f.score += 1 / float32(rrfK+rank)
	}

	for i, r := range semanticList {
		add(r.Document, i+1)
	}
	for i, r := range keywordList {
		add(r.Document, i+1)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].seen < merged[j].seen
	})

	results := make([]Result, 0, len(merged))
	for _, f := range merged {
		results = append(results, Result{Document: f.doc, Score: f.score})
	}
	return results
}

// rerank re-scores a widened semantic candidate set with a keyword signal
// and a length penalty. It never introduces documents outside the semantic
// candidates.
func (e *Engine) rerank(ctx context.Context, query string, k int, filter map[string]string) ([]Result, error) {
	candidates, err := e.semantic(ctx, query, 2*k, filter)
	if err != nil {
		return nil, err
	}

	keywords := extractKeywords(query)
	for i := range candidates {
		kw := keywordScore(candidates[i].Document.Content, keywords)
		score := 0.7*candidates[i].Score + 0.3*kw
		candidates[i].Score = score * lengthPenalty(candidates[i].Document.Content)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates, nil
}

// lengthPenalty discounts very short chunks (little context) and very long
// ones (diluted relevance).
func lengthPenalty(content string) float32 {
	switch n := utf8.RuneCountInString(content); {
	case n < 100:
		return 0.8
	case n > 2000:
		return 0.9
	default:
		return 1.0
	}
}
