package loader

// TextLoader handles plain text formats.
type TextLoader struct{}

// Extensions implements Loader.
func (*TextLoader) Extensions() []string {
	return []string{".txt", ".text", ".log", ".rst"}
}

// Load implements Loader.
func (*TextLoader) Load(path string) (*Document, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}

	return &Document{
		Content: content,
		Metadata: map[string]string{
			"format":     "text",
			"line_count": itoa(countLines(content)),
			"word_count": itoa(countWords(content)),
			"char_count": itoa(len(content)),
		},
	}, nil
}
