// Package feature derives the composite risk feature from a session record
// and aligns the record to the fixed schema the classifier was trained on.
package feature

// Align derives risk_score and produces the schema-ordered vector.
//
// Any risk_score the caller sent is overwritten by the derived value.
// Schema fields that are absent or not numeric become 0 and fields outside
// the schema are dropped. One-hot indicators (protocol_type_TCP and friends)
// must already be encoded upstream. Align never fails.
func Align(r *Record) Vector {
	working := r.Clone()
	working.Set(RiskScoreColumn, RiskScore(r))

	var v Vector
	for i, col := range Columns {
		v[i] = working.Number(col)
	}
	return v
}
