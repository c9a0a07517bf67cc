// Package loader turns raw documents into normalized text plus lightweight
// structural metadata.
//
// A Dispatcher holds an ordered list of loaders; each loader declares the
// file extensions it accepts and dispatch picks the first match. Loaders
// recover from decode errors (detected charset first, lossy UTF-8 last)
// instead of failing a whole ingestion batch.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

var (
	// ErrUnsupportedFormat indicates no registered loader accepts the file.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDecodeFailure indicates the file bytes could not be decoded.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrNotFound indicates the source file does not exist.
	ErrNotFound = errors.New("document not found")
)

// Document is the normalized output of a loader. It is consumed once by
// the chunking stage and never persisted.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Loader reads one document format.
type Loader interface {
	// Extensions returns the lowercase file extensions (with dot) accepted.
	Extensions() []string

	// Load reads and normalizes the file at path.
	Load(path string) (*Document, error)
}

// Dispatcher routes a path to the first loader accepting its extension.
type Dispatcher struct {
	loaders []Loader
	logger  log.Logger
}

// NewDispatcher creates a dispatcher over the default loader set.
func NewDispatcher(logger log.Logger) *Dispatcher {
	return NewDispatcherWith(logger,
		&CodeLoader{},
		&MarkdownLoader{},
		&HTMLLoader{},
		&JSONLoader{},
		&CSVLoader{},
		&TextLoader{},
	)
}

// NewDispatcherWith creates a dispatcher over an explicit ordered loader
// list. Earlier loaders win when extensions overlap.
func NewDispatcherWith(logger log.Logger, loaders ...Loader) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{loaders: loaders, logger: logger}
}

// Load dispatches path to a matching loader.
func (d *Dispatcher) Load(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	for _, l := range d.loaders {
		if !accepts(l, ext) {
			continue
		}
		doc, err := l.Load(path)
		if err != nil {
			return nil, err
		}
		doc.Metadata["file_name"] = filepath.Base(path)
		doc.Metadata["file_ext"] = ext
		d.logger.Debug("loaded document",
			"path", path,
			"content_length", len(doc.Content))
		return doc, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Supported returns every extension accepted by the registered loaders.
func (d *Dispatcher) Supported() []string {
	seen := make(map[string]struct{})
	var exts []string
	for _, l := range d.loaders {
		for _, ext := range l.Extensions() {
			if _, ok := seen[ext]; ok {
				continue
			}
			seen[ext] = struct{}{}
			exts = append(exts, ext)
		}
	}
	return exts
}

// Accepts reports whether any registered loader handles the path.
func (d *Dispatcher) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range d.loaders {
		if accepts(l, ext) {
			return true
		}
	}
	return false
}

func accepts(l Loader, ext string) bool {
	for _, e := range l.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// readFile reads and decodes a file, mapping missing files to ErrNotFound.
func readFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return decode(raw)
}

// itoa keeps metadata values as strings, matching the storage convention.
func itoa(n int) string { return strconv.Itoa(n) }

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
