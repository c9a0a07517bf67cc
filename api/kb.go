package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/quixotic-maker/jarvis-sub000/internal/chunk"
	"github.com/quixotic-maker/jarvis-sub000/internal/kb"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
	"github.com/quixotic-maker/jarvis-sub000/internal/retrieval"
)

// previewRunes bounds document content in listing responses.
const previewRunes = 100

// KBHandler handles knowledge base endpoints.
type KBHandler struct {
	registry *kb.Registry
	logger   log.Logger
}

// NewKBHandler creates a knowledge base handler over the registry.
func NewKBHandler(registry *kb.Registry, logger log.Logger) *KBHandler {
	return &KBHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers knowledge base routes on the given mux.
func (h *KBHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /kb", h.list)
	mux.HandleFunc("POST /kb/{name}", h.create)
	mux.HandleFunc("DELETE /kb/{name}", h.delete)
	mux.HandleFunc("POST /kb/{name}/text", h.ingestText)
	mux.HandleFunc("POST /kb/{name}/file", h.ingestFile)
	mux.HandleFunc("POST /kb/{name}/directory", h.ingestDirectory)
	mux.HandleFunc("POST /kb/{name}/search", h.search)
	mux.HandleFunc("POST /kb/{name}/context", h.assembleContext)
	mux.HandleFunc("GET /kb/{name}/documents", h.listDocuments)
	mux.HandleFunc("DELETE /kb/{name}/documents/{id}", h.deleteDocument)
	mux.HandleFunc("DELETE /kb/{name}/documents", h.deleteByFilter)
	mux.HandleFunc("GET /kb/{name}/stats", h.stats)
	mux.HandleFunc("POST /kb/{name}/export", h.export)
	mux.HandleFunc("POST /kb/{name}/import", h.importSnapshot)
}

// base resolves the knowledge base named in the path, creating it on first
// use with default configuration.
func (h *KBHandler) base(w http.ResponseWriter, r *http.Request) (*kb.KnowledgeBase, bool) {
	base, err := h.registry.GetOrCreate(r.Context(), r.PathValue("name"), kb.Config{})
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return base, true
}

// decode reads a JSON request body. An empty body decodes into the zero
// value rather than erroring so optional bodies stay optional.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("decoding request body: %v", err))
		return false
	}
	return true
}

func (h *KBHandler) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"knowledge_bases": h.registry.Names()})
}

func (h *KBHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description   string `json:"description"`
		ChunkSize     int    `json:"chunk_size"`
		ChunkOverlap  int    `json:"chunk_overlap"`
		ChunkStrategy string `json:"chunk_strategy"`
	}
	if !decode(w, r, &req) {
		return
	}

	strategy, err := chunk.ParseStrategy(req.ChunkStrategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_strategy", err.Error())
		return
	}

	base, err := h.registry.GetOrCreate(r.Context(), r.PathValue("name"), kb.Config{
		Description:  req.Description,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
		Strategy:     strategy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stats, err := base.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *KBHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), r.PathValue("name")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": r.PathValue("name")})
}

func (h *KBHandler) ingestText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "missing_text", "text must not be empty")
		return
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	ids, err := base.IngestText(r.Context(), req.Text, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_ids": ids})
}

func (h *KBHandler) ingestFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing_path", "path must not be empty")
		return
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	ids, err := base.IngestFile(r.Context(), req.Path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_ids": ids})
}

func (h *KBHandler) ingestDirectory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string   `json:"path"`
		Recursive bool     `json:"recursive"`
		Patterns  []string `json:"patterns"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing_path", "path must not be empty")
		return
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	report, err := base.IngestDirectory(r.Context(), req.Path, kb.DirectoryOptions{
		Recursive: req.Recursive,
		Patterns:  req.Patterns,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Partial failure is still a success with a detail payload.
	writeJSON(w, http.StatusOK, report)
}

// searchResult is the wire shape of one hit.
type searchResult struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Rank     int               `json:"rank"`
	Metadata map[string]string `json:"metadata"`
}

func (h *KBHandler) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query          string            `json:"query"`
		Mode           string            `json:"mode"`
		K              int               `json:"k"`
		Filter         map[string]string `json:"filter"`
		ScoreThreshold float32           `json:"score_threshold"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query must not be empty")
		return
	}

	mode, err := retrieval.ParseMode(req.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	results, err := base.Search(r.Context(), req.Query, mode, retrieval.Options{
		K:         req.K,
		Filter:    req.Filter,
		Threshold: req.ScoreThreshold,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]searchResult, 0, len(results))
	for _, res := range results {
		out = append(out, searchResult{
			ID:       res.Document.ID,
			Content:  res.Document.Content,
			Score:    res.Score,
			Rank:     res.Rank,
			Metadata: res.Document.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "mode": mode})
}

func (h *KBHandler) assembleContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		K        int    `json:"k"`
		MaxChars int    `json:"max_chars"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query must not be empty")
		return
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	text, err := base.Context(r.Context(), req.Query, req.K, req.MaxChars)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": text})
}

// documentSummary is the wire shape of one listed document: a content
// preview plus full metadata.
type documentSummary struct {
	ID       string            `json:"id"`
	Preview  string            `json:"preview"`
	Metadata map[string]string `json:"metadata"`
}

func (h *KBHandler) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	docs, err := base.List(r.Context(), parseFilter(r.URL.Query()["filter"]), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentSummary{
			ID:       doc.ID,
			Preview:  preview(doc.Content),
			Metadata: doc.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "count": len(out)})
}

func (h *KBHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	base, ok := h.base(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	deleted, err := base.Delete(r.Context(), []string{id})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("document %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *KBHandler) deleteByFilter(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r.URL.Query()["filter"])
	if len(filter) == 0 {
		writeError(w, http.StatusBadRequest, "missing_filter", "filter query parameter required")
		return
	}

	base, ok := h.base(w, r)
	if !ok {
		return
	}
	deleted, err := base.DeleteByMetadata(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *KBHandler) stats(w http.ResponseWriter, r *http.Request) {
	base, ok := h.base(w, r)
	if !ok {
		return
	}
	stats, err := base.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *KBHandler) export(w http.ResponseWriter, r *http.Request) {
	base, ok := h.base(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if _, err := base.ExportTo(r.Context(), &buf); err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("writing export response", "kb", base.Name(), "error", err)
	}
}

func (h *KBHandler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	base, ok := h.base(w, r)
	if !ok {
		return
	}

	imported, err := base.ImportFrom(r.Context(), r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": imported})
}

// parseFilter turns repeated "key:value" query parameters into a metadata
// filter. Malformed entries are ignored.
func parseFilter(raw []string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	filter := make(map[string]string, len(raw))
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, ":")
		if !ok || key == "" {
			continue
		}
		filter[key] = value
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "…"
}
