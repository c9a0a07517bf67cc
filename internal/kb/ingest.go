package kb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// IngestReport summarizes one directory ingestion.
type IngestReport struct {
	FilesSucceeded  int           `json:"files_succeeded"`
	FilesFailed     int           `json:"files_failed"`
	FilesSkipped    int           `json:"files_skipped"`
	ChunksWritten   int           `json:"chunks_written"`
	Elapsed         time.Duration `json:"elapsed"`
	ChunksPerSecond float64       `json:"chunks_per_second"`
	Failures        []FileFailure `json:"failures,omitempty"`
}

// FileFailure records one file that could not be ingested.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DirectoryOptions tune IngestDirectory.
type DirectoryOptions struct {
	// Recursive descends into subdirectories.
	Recursive bool
	// Patterns are doublestar globs matched against the path relative to
	// the ingested directory. Empty means every supported file.
	Patterns []string
}

// IngestText chunks, embeds and stores one piece of text. The given
// metadata is copied onto every chunk. Whitespace-only text stores nothing
// and returns an empty id list.
func (k *KnowledgeBase) IngestText(ctx context.Context, text string, metadata map[string]string) ([]string, error) {
	return k.ingest(ctx, text, "", metadata)
}

// IngestFile loads one file through the loader dispatch, then chunks,
// embeds and stores it. Chunk ids are deterministic per (file, index), so
// re-ingesting a file overwrites its previous chunks.
func (k *KnowledgeBase) IngestFile(ctx context.Context, path string) ([]string, error) {
	doc, err := k.loaders.Load(path)
	if err != nil {
		return nil, err
	}
	return k.ingest(ctx, doc.Content, fileDocID(path), doc.Metadata)
}

// ingest runs the chunk → embed → store pipeline. idPrefix empty means the
// store assigns ids.
func (k *KnowledgeBase) ingest(ctx context.Context, text, idPrefix string, metadata map[string]string) ([]string, error) {
	chunks := k.splitter.Split(text)
	if len(chunks) == 0 {
		return []string{}, nil
	}

	source := metadata["source"]
	if source == "" {
		source = metadata["file_name"]
	}
	if source == "" {
		source = "text"
	}

	now := time.Now().UTC().Format(time.RFC3339)
	docs := make([]vectorstore.Document, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		md := make(map[string]string, len(metadata)+len(c.Metadata)+2)
		for key, value := range metadata {
			md[key] = value
		}
		for key, value := range c.Metadata {
			md[key] = value
		}
		md["chunk_index"] = strconv.Itoa(i)
		md["source"] = source
		md["ingested_at"] = now

		var id string
		if idPrefix != "" {
			id = idPrefix + "_" + strconv.Itoa(i)
		}
		docs[i] = vectorstore.Document{ID: id, Content: c.Text, Metadata: md}
		texts[i] = c.Text
	}

	vecs, err := k.batcher.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	for i := range docs {
		docs[i].Embedding = vecs[i]
	}

	ids, err := k.store.Add(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("storing %d chunks: %w", len(chunks), err)
	}
	k.logger.Debug("ingested", "source", source, "chunks", len(ids))
	return ids, nil
}

// IngestDirectory walks a directory and ingests every supported file,
// honoring .gitignore at the directory root. One file's failure is counted
// and logged without aborting the batch.
func (k *KnowledgeBase) IngestDirectory(ctx context.Context, dir string, opts DirectoryOptions) (*IngestReport, error) {
	start := time.Now()
	report := &IngestReport{}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}
	if info, err := os.Stat(absDir); err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var gitIgnore *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(absDir, ".gitignore")); err == nil {
		// A malformed .gitignore is ignored rather than failing the walk.
		gitIgnore, _ = ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	}

	walkErr := filepath.WalkDir(absDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			report.FilesFailed++
			report.Failures = append(report.Failures, FileFailure{Path: path, Error: err.Error()})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			report.FilesFailed++
			report.Failures = append(report.Failures, FileFailure{Path: path, Error: err.Error()})
			return nil
		}

		if entry.IsDir() {
			if rel == "." {
				return nil
			}
			if gitIgnore != nil && gitIgnore.MatchesPath(rel) {
				return filepath.SkipDir
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(rel) {
			report.FilesSkipped++
			return nil
		}
		if !matchesPatterns(rel, opts.Patterns) {
			report.FilesSkipped++
			return nil
		}
		if !k.loaders.Accepts(path) {
			report.FilesSkipped++
			return nil
		}

		ids, err := k.IngestFile(ctx, path)
		if err != nil {
			report.FilesFailed++
			report.Failures = append(report.Failures, FileFailure{Path: path, Error: err.Error()})
			k.logger.Warn("file ingestion failed", "path", path, "error", err)
			return nil
		}
		report.FilesSucceeded++
		report.ChunksWritten += len(ids)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	report.Elapsed = time.Since(start)
	if seconds := report.Elapsed.Seconds(); seconds > 0 {
		report.ChunksPerSecond = float64(report.ChunksWritten) / seconds
	}
	k.logger.Info("directory ingested", "dir", dir,
		"succeeded", report.FilesSucceeded, "failed", report.FilesFailed,
		"skipped", report.FilesSkipped, "chunks", report.ChunksWritten)
	return report, nil
}

func matchesPatterns(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// fileDocID derives a stable document id from the absolute file path, so
// the same file always maps to the same chunk ids.
func fileDocID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return "file_" + hex.EncodeToString(sum[:16])
}
