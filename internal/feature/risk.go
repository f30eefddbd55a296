package feature

import (
	"fmt"
	"strings"
)

// Risk score weights over the three raw inputs.
const (
	weightIPReputation = 0.5
	weightFailedLogins = 0.2
	weightUnusualTime  = 0.3
)

// RiskInputs are the raw fields the derived risk score is computed from.
var RiskInputs = []string{"ip_reputation_score", "failed_logins", "unusual_time_access"}

// RiskInputPolicy controls what happens when a risk input is absent.
type RiskInputPolicy string

const (
	// RiskInputsZero treats an absent input as 0.
	RiskInputsZero RiskInputPolicy = "zero"
	// RiskInputsStrict rejects a record missing any risk input.
	RiskInputsStrict RiskInputPolicy = "strict"
)

// ParseRiskInputPolicy maps a config string to a policy. Empty means zero.
func ParseRiskInputPolicy(s string) (RiskInputPolicy, error) {
	switch RiskInputPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RiskInputsZero:
		return RiskInputsZero, nil
	case RiskInputsStrict:
		return RiskInputsStrict, nil
	default:
		return "", fmt.Errorf("unknown risk input policy %q (want zero or strict)", s)
	}
}

// MissingInputsError lists risk inputs absent from a record.
type MissingInputsError struct {
	Fields []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("missing risk inputs: %s", strings.Join(e.Fields, ", "))
}

// RiskScore computes the composite risk feature.
// Deterministic and explainable: a weighted sum, nothing learned.
func RiskScore(r *Record) float64 {
	return r.Number("ip_reputation_score")*weightIPReputation +
		r.Number("failed_logins")*weightFailedLogins +
		r.Number("unusual_time_access")*weightUnusualTime
}

// CheckRiskInputs returns a *MissingInputsError when any risk input is
// absent or null. Present-but-malformed values are not reported.
func CheckRiskInputs(r *Record) error {
	var missing []string
	for _, name := range RiskInputs {
		v, ok := r.Get(name)
		if !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingInputsError{Fields: missing}
	}
	return nil
}
