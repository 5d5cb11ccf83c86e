// Package tabular reads the semicolon-delimited, BOM-prefixed input files
// that drive provisioning.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Row is one data row, keyed by header column name. Line is the 1-based
// line number in the source file, suitable for warnings.
type Row struct {
	Line   int
	fields map[string]string
}

// Get returns the trimmed-as-read value of a column, or "" if the column is
// absent.
func (r Row) Get(column string) string {
	return r.fields[column]
}

// Has reports whether the header declared the column.
func (r Row) Has(column string) bool {
	_, ok := r.fields[column]
	return ok
}

// ReadFile reads a ';'-delimited UTF-8 file, tolerating a leading byte-order
// mark, and returns one Row per data line keyed by the header.
func ReadFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, line, err)
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = record[i]
			} else {
				fields[col] = ""
			}
		}
		rows = append(rows, Row{Line: line, fields: fields})
	}
	return rows, nil
}
