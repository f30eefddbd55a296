package feature

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toFloat coerces a decoded JSON value into a number.
// Anything that is not a finite number (or a bool indicator) is rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Number returns the numeric value of a field, or 0 when the field is
// absent or not numeric.
func (r *Record) Number(key string) float64 {
	v, ok := r.Get(key)
	if !ok {
		return 0
	}
	f, _ := toFloat(v)
	return f
}
