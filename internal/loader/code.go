package loader

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// codeLanguages maps extensions to a language tag and its comment prefixes.
var codeLanguages = map[string]struct {
	name            string
	commentPrefixes []string
}{
	".go":   {"go", []string{"//"}},
	".py":   {"python", []string{"#"}},
	".js":   {"javascript", []string{"//"}},
	".ts":   {"typescript", []string{"//"}},
	".java": {"java", []string{"//"}},
	".c":    {"c", []string{"//"}},
	".h":    {"c", []string{"//"}},
	".cpp":  {"cpp", []string{"//"}},
	".hpp":  {"cpp", []string{"//"}},
	".rs":   {"rust", []string{"//"}},
	".rb":   {"ruby", []string{"#"}},
	".php":  {"php", []string{"//", "#"}},
	".sh":   {"shell", []string{"#"}},
	".sql":  {"sql", []string{"--"}},
	".yaml": {"yaml", []string{"#"}},
	".yml":  {"yaml", []string{"#"}},
}

var (
	classPattern    = regexp.MustCompile(`(?m)^\s*(class|type|struct|interface|impl)\s+\w`)
	functionPattern = regexp.MustCompile(`(?m)^\s*(func|def|fn|function)\s+\w|^\s*(public|private|protected)[\w\s]*\(`)
	importPattern   = regexp.MustCompile(`(?m)^\s*(import|from\s+\w+\s+import|require|use|#include)\b`)
)

// CodeLoader handles source code files, computing class/function/import
// counts and a comment-density ratio.
type CodeLoader struct{}

// Extensions implements Loader. The order is stable.
func (*CodeLoader) Extensions() []string {
	exts := make([]string, 0, len(codeLanguages))
	for ext := range codeLanguages {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load implements Loader.
func (*CodeLoader) Load(path string) (*Document, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}

	lang := codeLanguages[strings.ToLower(filepath.Ext(path))]

	lines := strings.Split(content, "\n")
	commentLines := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range lang.commentPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				commentLines++
				break
			}
		}
	}

	density := 0.0
	if len(lines) > 0 {
		density = float64(commentLines) / float64(len(lines))
	}

	return &Document{
		Content: content,
		Metadata: map[string]string{
			"format":          "code",
			"language":        lang.name,
			"line_count":      itoa(len(lines)),
			"class_count":     itoa(len(classPattern.FindAllString(content, -1))),
			"function_count":  itoa(len(functionPattern.FindAllString(content, -1))),
			"import_count":    itoa(len(importPattern.FindAllString(content, -1))),
			"comment_density": fmt.Sprintf("%.3f", density),
		},
	}, nil
}
