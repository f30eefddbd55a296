package decisionlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ppiankov/sessionwatch/internal/feature"
)

// TimestampFormat is the layout of the timestamp column (ISO-8601, UTC).
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// Fixed leading columns of every row.
const (
	ColumnTimestamp = "timestamp"
	ColumnAnomaly   = "anomaly"
)

// Record is one classification decision: the timestamp, the 0/1 anomaly
// flag and the session fields exactly as they arrived.
type Record struct {
	Timestamp time.Time
	Anomaly   int
	Fields    *feature.Record
}

// columns returns the record's field set in row order. Session fields
// named timestamp or anomaly are shadowed by the computed values.
func (r Record) columns() []string {
	cols := []string{ColumnTimestamp, ColumnAnomaly}
	for _, k := range r.Fields.Keys() {
		if k == ColumnTimestamp || k == ColumnAnomaly {
			continue
		}
		cols = append(cols, k)
	}
	return cols
}

// values renders every column of the record as a CSV cell.
func (r Record) values() map[string]string {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	out := map[string]string{
		ColumnTimestamp: ts.UTC().Format(TimestampFormat),
		ColumnAnomaly:   strconv.Itoa(r.Anomaly),
	}
	for _, k := range r.Fields.Keys() {
		if k == ColumnTimestamp || k == ColumnAnomaly {
			continue
		}
		v, _ := r.Fields.Get(k)
		out[k] = formatValue(v)
	}
	return out
}

// formatValue renders a decoded JSON value. Numbers keep their original
// text, null becomes an empty cell, composites are compact JSON.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
