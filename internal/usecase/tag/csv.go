package tag

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// tagRecord is one row of the extraction results CSV.
type tagRecord struct {
	FilePath string
	Title    string
	Keywords []string
	Err      string
}

// readTagRecords parses a CSV produced by the extraction pipeline. Columns
// are resolved by header name so the order does not matter; unknown columns
// are ignored. Expected headers: file_path, title, keywords, error.
func readTagRecords(path string) ([]tagRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := cols["title"]; !ok {
		return nil, fmt.Errorf("csv has no title column")
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []tagRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		records = append(records, tagRecord{
			FilePath: field(row, "file_path"),
			Title:    field(row, "title"),
			Keywords: splitKeywords(field(row, "keywords")),
			Err:      field(row, "error"),
		})
	}
	return records, nil
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
