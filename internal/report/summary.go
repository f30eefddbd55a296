// Package report aggregates the decision log into a summary view.
// Every summary is computed from the whole log; nothing is cached.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/ppiankov/sessionwatch/internal/decisionlog"
)

// DefaultRecentLimit is the size of the recent-history window.
const DefaultRecentLimit = 50

// Row is one decision row with its header, marshalled as an ordered object.
type Row struct {
	Columns []string
	Values  []string
}

// Get returns the value of a column, or "" when absent.
func (r Row) Get(col string) string {
	for i, c := range r.Columns {
		if c == col && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// MarshalJSON emits the row as an object in header order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		var v []byte
		if i < len(r.Values) {
			v, err = json.Marshal(r.Values[i])
		} else {
			v, err = json.Marshal(nil)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Summary is the derived view of the decision log.
type Summary struct {
	Total       int      `json:"total"`
	Anomalies   int      `json:"anomalies"`
	Normal      int      `json:"normal"`
	AnomalyRate float64  `json:"anomaly_rate"`
	Columns     []string `json:"columns"`
	Recent      []Row    `json:"recent"`
}

// Empty returns the zero summary with a non-nil recent slice.
func Empty() Summary {
	return Summary{Columns: []string{}, Recent: []Row{}}
}

// Compute aggregates a parsed log. Anomaly values that are missing or
// not numeric count as 0. limit <= 0 means DefaultRecentLimit.
func Compute(t *decisionlog.Table, limit int) Summary {
	s := Empty()
	if t == nil || len(t.Header) == 0 {
		return s
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	col := t.Column(decisionlog.ColumnAnomaly)
	sum := 0.0
	for _, row := range t.Rows {
		if col < 0 || col >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(row[col], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
	}

	s.Total = len(t.Rows)
	s.Anomalies = int(math.Round(sum))
	s.Normal = s.Total - s.Anomalies
	if s.Total > 0 {
		s.AnomalyRate = float64(s.Anomalies) / float64(s.Total) * 100
	}

	s.Columns = t.Header
	for _, row := range t.Last(limit).Rows {
		s.Recent = append(s.Recent, Row{Columns: t.Header, Values: row})
	}
	return s
}

// Load reads the log at path and aggregates it. A missing or empty log
// yields the zero summary without error. A log whose rows are wider than
// the header, or which lacks the anomaly column, is malformed.
func Load(path string, limit int) (Summary, error) {
	t, err := decisionlog.ReadTable(path)
	if err != nil {
		return Empty(), fmt.Errorf("report: read log: %w", err)
	}
	if len(t.Header) == 0 {
		return Empty(), nil
	}
	if t.Column(decisionlog.ColumnAnomaly) < 0 {
		return Empty(), fmt.Errorf("report: log has no %s column", decisionlog.ColumnAnomaly)
	}
	for i, row := range t.Rows {
		if len(row) > len(t.Header) {
			return Empty(), fmt.Errorf("report: line %d has %d fields, header has %d", i+2, len(row), len(t.Header))
		}
	}
	return Compute(t, limit), nil
}
