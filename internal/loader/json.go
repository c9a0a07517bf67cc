package loader

import "encoding/json"

// JSONLoader normalizes JSON documents to indented text so chunk boundaries
// fall on line breaks, recording key count and nesting depth.
type JSONLoader struct{}

// Extensions implements Loader.
func (*JSONLoader) Extensions() []string {
	return []string{".json", ".jsonl", ".geojson"}
}

// Load implements Loader.
func (*JSONLoader) Load(path string) (*Document, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		// Malformed JSON is still ingestible as plain text.
		return &Document{
			Content: content,
			Metadata: map[string]string{
				"format":     "json",
				"valid_json": "false",
				"line_count": itoa(countLines(content)),
			},
		}, nil
	}

	normalized, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		normalized = []byte(content)
	}

	keys, depth := jsonShape(parsed, 1)

	return &Document{
		Content: string(normalized),
		Metadata: map[string]string{
			"format":     "json",
			"valid_json": "true",
			"key_count":  itoa(keys),
			"max_depth":  itoa(depth),
			"line_count": itoa(countLines(string(normalized))),
		},
	}, nil
}

// jsonShape walks a decoded JSON value counting object keys and tracking
// the deepest nesting level.
func jsonShape(v any, depth int) (keys, maxDepth int) {
	maxDepth = depth
	switch t := v.(type) {
	case map[string]any:
		keys = len(t)
		for _, child := range t {
			k, d := jsonShape(child, depth+1)
			keys += k
			if d > maxDepth {
				maxDepth = d
			}
		}
	case []any:
		for _, child := range t {
			k, d := jsonShape(child, depth+1)
			keys += k
			if d > maxDepth {
				maxDepth = d
			}
		}
	}
	return keys, maxDepth
}
