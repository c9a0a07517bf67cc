package loader

import (
	"encoding/csv"
	"strings"
)

// CSVLoader renders tabular files one record per line so row boundaries
// survive chunking, recording header and dimension metadata.
type CSVLoader struct{}

// Extensions implements Loader.
func (*CSVLoader) Extensions() []string {
	return []string{".csv", ".tsv"}
}

// Load implements Loader.
func (*CSVLoader) Load(path string) (*Document, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(content))
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		// Ragged or malformed tables fall back to plain text.
		return &Document{
			Content: content,
			Metadata: map[string]string{
				"format":     "csv",
				"valid_csv":  "false",
				"line_count": itoa(countLines(content)),
			},
		}, nil
	}

	columns := 0
	var lines []string
	for _, record := range records {
		if len(record) > columns {
			columns = len(record)
		}
		lines = append(lines, strings.Join(record, ", "))
	}

	return &Document{
		Content: strings.Join(lines, "\n"),
		Metadata: map[string]string{
			"format":    "csv",
			"valid_csv": "true",
			"header":    strings.Join(records[0], ","),
			"row_count": itoa(len(records) - 1),
			"col_count": itoa(columns),
		},
	}, nil
}
