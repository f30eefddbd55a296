// Package detector defines the boundary to the pre-trained model artifacts:
// a normalizer that scales a feature vector with training-time statistics
// and a scorer that labels the scaled vector anomalous or normal.
//
// Both are loaded once at startup and treated as immutable, stateless
// functions afterwards. Callers depend on the Normalizer and Scorer
// interfaces so any backing implementation can be substituted.
package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ppiankov/sessionwatch/internal/feature"
)

// Label is the scorer's two-class output.
type Label int

const (
	// Anomalous is the outlier sentinel.
	Anomalous Label = -1
	// Normal marks an inlier.
	Normal Label = 1
)

// Anomaly maps the label to the 0/1 flag recorded in the decision log.
func (l Label) Anomaly() int {
	if l == Anomalous {
		return 1
	}
	return 0
}

func (l Label) String() string {
	switch l {
	case Anomalous:
		return "anomalous"
	case Normal:
		return "normal"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// Normalizer scales a raw feature vector.
type Normalizer interface {
	Normalize(v feature.Vector) ([]float64, error)
}

// Scorer labels a normalized vector.
type Scorer interface {
	Score(x []float64) (Label, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(v feature.Vector) ([]float64, error)

// Normalize calls f(v).
func (f NormalizerFunc) Normalize(v feature.Vector) ([]float64, error) { return f(v) }

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(x []float64) (Label, error)

// Score calls f(x).
func (f ScorerFunc) Score(x []float64) (Label, error) { return f(x) }

// Identity passes the vector through unscaled.
var Identity = NormalizerFunc(func(v feature.Vector) ([]float64, error) {
	return v.Slice(), nil
})

// Bundle is the loaded model pair plus the content hashes of the artifacts
// it was built from.
type Bundle struct {
	Normalizer Normalizer
	Scorer     Scorer
	ScalerHash string
	ForestHash string
}

// LoadBundle loads the scaler and isolation forest artifacts.
func LoadBundle(scalerPath, forestPath string) (*Bundle, error) {
	scaler, scalerHash, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	forest, forestHash, err := LoadForest(forestPath)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Normalizer: scaler,
		Scorer:     forest,
		ScalerHash: scalerHash,
		ForestHash: forestHash,
	}, nil
}

// readArtifact reads an artifact file and returns its bytes and "sha256:<hex>" hash.
func readArtifact(kind, path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("detector: %s artifact path is empty", kind)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("detector: read %s artifact: %w", kind, err)
	}
	h := sha256.Sum256(data)
	return data, "sha256:" + hex.EncodeToString(h[:]), nil
}
