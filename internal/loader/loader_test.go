package loader

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quixotic-maker/jarvis-sub000/internal/log"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDispatcher_UnsupportedFormat(t *testing.T) {
	d := NewDispatcher(log.NewNop())

	_, err := d.Load("archive.tar.gz")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDispatcher_NotFound(t *testing.T) {
	d := NewDispatcher(log.NewNop())

	_, err := d.Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

// stubLoader claims .txt so dispatch order against TextLoader is observable.
type stubLoader struct{}

func (stubLoader) Extensions() []string { return []string{".txt"} }

func (stubLoader) Load(string) (*Document, error) {
	return &Document{Content: "stub", Metadata: map[string]string{"format": "stub"}}, nil
}

func TestDispatcher_FirstMatchWins(t *testing.T) {
	// Both loaders claim .txt; the earlier one must be picked.
	path := writeTemp(t, "notes.txt", "plain text")

	d := NewDispatcherWith(log.NewNop(), stubLoader{}, &TextLoader{})
	doc, err := d.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stub", doc.Metadata["format"])

	d = NewDispatcherWith(log.NewNop(), &TextLoader{}, stubLoader{})
	doc, err = d.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "text", doc.Metadata["format"])
}

func TestCodeLoaderExtensionsStable(t *testing.T) {
	exts := (&CodeLoader{}).Extensions()
	assert.True(t, sort.StringsAreSorted(exts))
	assert.Equal(t, exts, (&CodeLoader{}).Extensions())
}

func TestDispatcher_AttachesFileMetadata(t *testing.T) {
	d := NewDispatcher(log.NewNop())
	path := writeTemp(t, "readme.md", "# Title\n\nBody text.")

	doc, err := d.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "readme.md", doc.Metadata["file_name"])
	assert.Equal(t, ".md", doc.Metadata["file_ext"])
}

func TestTextLoader_Counts(t *testing.T) {
	path := writeTemp(t, "a.txt", "one two three\nfour five")

	doc, err := (&TextLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Metadata["line_count"])
	assert.Equal(t, "5", doc.Metadata["word_count"])
}

func TestMarkdownLoader_Structure(t *testing.T) {
	content := "# Top\n\nSee [docs](https://example.com) and [api](https://example.com/api).\n\n## Sub\n\n```go\ncode\n```\n"
	path := writeTemp(t, "doc.md", content)

	doc, err := (&MarkdownLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Metadata["heading_count"])
	assert.Equal(t, "1", doc.Metadata["code_block_count"])
	assert.Equal(t, "2", doc.Metadata["link_count"])
}

func TestCodeLoader_GoFile(t *testing.T) {
	content := `package demo

import "fmt"

// Greeter says hello.
type Greeter struct{}

// Greet prints a greeting.
func Greet(name string) {
	fmt.Println("hello", name)
}
`
	path := writeTemp(t, "demo.go", content)

	doc, err := (&CodeLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "go", doc.Metadata["language"])
	assert.Equal(t, "1", doc.Metadata["class_count"])
	assert.Equal(t, "1", doc.Metadata["function_count"])
	assert.Equal(t, "1", doc.Metadata["import_count"])
	assert.NotEqual(t, "0.000", doc.Metadata["comment_density"])
}

func TestJSONLoader_ValidAndInvalid(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeTemp(t, "data.json", `{"a":{"b":1},"c":[2,3]}`)
		doc, err := (&JSONLoader{}).Load(path)
		require.NoError(t, err)
		assert.Equal(t, "true", doc.Metadata["valid_json"])
		assert.Equal(t, "3", doc.Metadata["key_count"])
	})

	t.Run("invalid falls back to text", func(t *testing.T) {
		path := writeTemp(t, "broken.json", `{"a":`)
		doc, err := (&JSONLoader{}).Load(path)
		require.NoError(t, err)
		assert.Equal(t, "false", doc.Metadata["valid_json"])
		assert.Equal(t, `{"a":`, doc.Content)
	})
}

func TestCSVLoader_RendersRows(t *testing.T) {
	path := writeTemp(t, "table.csv", "name,age\nalice,30\nbob,25\n")

	doc, err := (&CSVLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "name,age", doc.Metadata["header"])
	assert.Equal(t, "2", doc.Metadata["row_count"])
	assert.Contains(t, doc.Content, "alice, 30")
}

func TestHTMLLoader_ExtractsText(t *testing.T) {
	content := `<html><head><title>Test Page</title><style>body{color:red}</style></head>
<body><h1>Welcome</h1><p>Visible paragraph text for extraction, long enough to matter.</p>
<a href="https://example.com">link</a><script>var x = 1;</script></body></html>`
	path := writeTemp(t, "page.html", content)

	doc, err := (&HTMLLoader{}).Load(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Visible paragraph text")
	assert.NotContains(t, doc.Content, "var x = 1")
	assert.NotContains(t, doc.Content, "color:red")
	assert.Equal(t, "Test Page", doc.Metadata["title"])
	assert.Equal(t, "1", doc.Metadata["link_count"])
	assert.Equal(t, "1", doc.Metadata["heading_count"])
}

func TestDecode_LossyFallback(t *testing.T) {
	// Invalid UTF-8 bytes that no charset detector maps cleanly.
	got, err := decode([]byte{'o', 'k', 0xff, 0xfe, 0xfd, 'e', 'n', 'd'})
	require.NoError(t, err)
	assert.Contains(t, got, "ok")
	assert.Contains(t, got, "end")
}

func TestDecode_Latin1(t *testing.T) {
	// "café" in ISO-8859-1.
	got, err := decode([]byte{'c', 'a', 'f', 0xe9})
	require.NoError(t, err)
	assert.Contains(t, got, "caf")
}
