package detector

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ppiankov/sessionwatch/internal/feature"
)

// StandardScaler standardizes each feature with the mean and scale
// captured at training time.
type StandardScaler struct {
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// Validate checks the artifact against the feature schema.
func (s *StandardScaler) Validate() error {
	if !feature.SameSchema(s.FeatureNames) {
		return fmt.Errorf("scaler feature_names do not match the %d-column feature schema", feature.NumFeatures)
	}
	if len(s.Mean) != feature.NumFeatures || len(s.Scale) != feature.NumFeatures {
		return fmt.Errorf("scaler has %d means and %d scales, want %d each",
			len(s.Mean), len(s.Scale), feature.NumFeatures)
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsNaN(s.Scale[i]) {
			return fmt.Errorf("scaler statistics for %s are NaN", s.FeatureNames[i])
		}
	}
	return nil
}

// Normalize returns (x - mean) / scale per slot. A zero scale (constant
// feature at training time) divides by 1.
func (s *StandardScaler) Normalize(v feature.Vector) ([]float64, error) {
	out := make([]float64, feature.NumFeatures)
	for i, x := range v {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x - s.Mean[i]) / scale
	}
	return out, nil
}

// LoadScaler reads and validates a JSON scaler artifact.
func LoadScaler(path string) (*StandardScaler, string, error) {
	data, hash, err := readArtifact("scaler", path)
	if err != nil {
		return nil, "", err
	}
	var s StandardScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, "", fmt.Errorf("detector: parse scaler artifact: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, "", fmt.Errorf("detector: %s: %w", path, err)
	}
	return &s, hash, nil
}
