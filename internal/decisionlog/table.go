package decisionlog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
)

// Table is the parsed contents of a decision log.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of a header column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Ragged reports the first data row whose width differs from the header,
// as a 1-based file line, or 0 when every row fits.
func (t *Table) Ragged() int {
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return i + 2
		}
	}
	return 0
}

// Last returns a table holding at most the final n rows, in file order.
func (t *Table) Last(n int) *Table {
	rows := t.Rows
	if n >= 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return &Table{Header: t.Header, Rows: rows}
}

// ReadTable parses the whole log. A final line without a terminating
// newline is an append in progress and is ignored. An empty file yields
// an empty table. A missing file is returned as an error wrapping
// fs.ErrNotExist.
func ReadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTable(data)
}

// Tail returns the header and the last n rows of the log.
func Tail(path string, n int) (*Table, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return t.Last(n), nil
}

func parseTable(data []byte) (*Table, error) {
	data = completeLines(data)
	if len(data) == 0 {
		return &Table{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decisionlog: parse: %w", err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// completeLines drops trailing bytes after the last newline.
func completeLines(data []byte) []byte {
	i := bytes.LastIndexByte(data, '\n')
	if i < 0 {
		return nil
	}
	return data[:i+1]
}
