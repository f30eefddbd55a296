package feature

// RiskScoreColumn is the derived feature appended to every vector.
const RiskScoreColumn = "risk_score"

// NumFeatures is the width of the vector the normalizer and scorer were trained on.
const NumFeatures = 17

// Columns is the training-time feature schema, in slot order.
// Reordering or renaming any entry silently corrupts every score.
var Columns = [NumFeatures]string{
	"network_packet_size",
	"login_attempts",
	"session_duration",
	"ip_reputation_score",
	"failed_logins",
	"unusual_time_access",
	"protocol_type_ICMP",
	"protocol_type_TCP",
	"protocol_type_UDP",
	"encryption_used_AES",
	"encryption_used_DES",
	"browser_type_Chrome",
	"browser_type_Edge",
	"browser_type_Firefox",
	"browser_type_Safari",
	"browser_type_Unknown",
	RiskScoreColumn,
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, NumFeatures)
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// Index returns the slot of a schema column, or -1 if name is not in the schema.
func Index(name string) int {
	if i, ok := columnIndex[name]; ok {
		return i
	}
	return -1
}

// Vector is a fixed-order numeric feature vector matching Columns.
type Vector [NumFeatures]float64

// Get returns the value of a named slot.
func (v Vector) Get(name string) (float64, bool) {
	i := Index(name)
	if i < 0 {
		return 0, false
	}
	return v[i], true
}

// Slice returns a copy of the vector as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by column name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, c := range Columns {
		m[c] = v[i]
	}
	return m
}

// SameSchema reports whether names matches Columns exactly, order included.
func SameSchema(names []string) bool {
	if len(names) != NumFeatures {
		return false
	}
	for i, n := range names {
		if Columns[i] != n {
			return false
		}
	}
	return true
}
