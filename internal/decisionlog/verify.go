package decisionlog

import (
	"errors"
	"fmt"
	"io/fs"
)

// VerifyResult holds the outcome of a decision log integrity check.
type VerifyResult struct {
	Valid     bool     `json:"valid"`
	Rows      int      `json:"rows"`
	Columns   []string `json:"columns,omitempty"`
	Anomalies int      `json:"anomalies"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorLine int      `json:"error_line,omitempty"`
}

// Verify checks that the log parses, that every row matches the header
// width, that the fixed leading columns are present and that the anomaly
// column only holds 0 or 1. A sidecar that disagrees with the header row
// is reported as a warning.
func Verify(path string) VerifyResult {
	t, err := ReadTable(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("read: %v", err)}
	}
	if len(t.Header) == 0 {
		return VerifyResult{Valid: true}
	}

	res := VerifyResult{Columns: t.Header, Rows: len(t.Rows)}

	if len(t.Header) < 2 || t.Header[0] != ColumnTimestamp || t.Header[1] != ColumnAnomaly {
		res.Error = fmt.Sprintf("header must start with %s,%s", ColumnTimestamp, ColumnAnomaly)
		res.ErrorLine = 1
		return res
	}

	for i, row := range t.Rows {
		line := i + 2
		if len(row) != len(t.Header) {
			res.Error = fmt.Sprintf("row has %d fields, header has %d", len(row), len(t.Header))
			res.ErrorLine = line
			return res
		}
		switch row[1] {
		case "1":
			res.Anomalies++
		case "0":
		default:
			res.Error = fmt.Sprintf("anomaly value %q is not 0 or 1", row[1])
			res.ErrorLine = line
			return res
		}
	}

	schema, err := ReadSchema(SchemaPath(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Warnings = append(res.Warnings, "schema sidecar missing")
	case err != nil:
		res.Warnings = append(res.Warnings, fmt.Sprintf("schema sidecar unreadable: %v", err))
	case !sameColumns(schema.Columns, t.Header):
		res.Warnings = append(res.Warnings, "schema sidecar disagrees with header row")
	}

	res.Valid = true
	return res
}
