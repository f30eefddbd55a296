package detector

import (
	"encoding/json"
	"fmt"
	"math"
)

// leaf marks a node without children in the flattened tree arrays.
const leaf = -1

// eulerGamma approximates the Euler-Mascheroni constant for H(n).
const eulerGamma = 0.5772156649

// Tree is one isolation tree in flattened array form: node i splits on
// Feature[i] at Threshold[i]; samples with x <= threshold go to
// ChildrenLeft[i], others to ChildrenRight[i]. A node whose children are
// -1 is a leaf holding NodeSamples[i] training samples. Feature indices
// refer to the full feature schema; exporters resolve per-estimator
// feature subsets before writing the artifact.
type Tree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	NodeSamples   []int     `json:"n_node_samples"`
}

// IsolationForest scores a sample by how quickly random splits isolate it.
// Decision(x) < 0 marks an outlier.
type IsolationForest struct {
	Version    string  `json:"version"`
	MaxSamples int     `json:"max_samples"`
	Offset     float64 `json:"offset"`
	NFeatures  int     `json:"n_features"`
	Trees      []Tree  `json:"trees"`
}

// Validate checks structural consistency of every tree.
func (f *IsolationForest) Validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	if f.MaxSamples < 2 {
		return fmt.Errorf("forest max_samples must be at least 2, got %d", f.MaxSamples)
	}
	if f.NFeatures < 1 {
		return fmt.Errorf("forest n_features must be positive, got %d", f.NFeatures)
	}
	for ti, t := range f.Trees {
		n := len(t.ChildrenLeft)
		if n == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.NodeSamples) != n {
			return fmt.Errorf("tree %d has mismatched array lengths", ti)
		}
		for i := 0; i < n; i++ {
			l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
			if l == leaf && r == leaf {
				continue
			}
			if l <= i || r <= i || l >= n || r >= n {
				return fmt.Errorf("tree %d node %d has invalid children (%d, %d)", ti, i, l, r)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= f.NFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d of %d", ti, i, t.Feature[i], f.NFeatures)
			}
		}
	}
	return nil
}

// pathLength returns the depth at which x lands plus the expected
// remaining depth of the leaf's unresolved samples.
func (t *Tree) pathLength(x []float64) float64 {
	node, depth := 0, 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
		depth++
	}
	return float64(depth) + averagePathLength(t.NodeSamples[node])
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}

// ScoreSamples returns the negated anomaly score in [-1, 0).
// Lower is more anomalous.
func (f *IsolationForest) ScoreSamples(x []float64) (float64, error) {
	if len(x) != f.NFeatures {
		return 0, fmt.Errorf("detector: forest expects %d features, got %d", f.NFeatures, len(x))
	}
	total := 0.0
	for i := range f.Trees {
		total += f.Trees[i].pathLength(x)
	}
	mean := total / float64(len(f.Trees))
	return -math.Pow(2, -mean/averagePathLength(f.MaxSamples)), nil
}

// Decision returns ScoreSamples shifted by the fitted offset.
func (f *IsolationForest) Decision(x []float64) (float64, error) {
	s, err := f.ScoreSamples(x)
	if err != nil {
		return 0, err
	}
	return s - f.Offset, nil
}

// Score labels x Anomalous when its decision value is negative.
func (f *IsolationForest) Score(x []float64) (Label, error) {
	d, err := f.Decision(x)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return Anomalous, nil
	}
	return Normal, nil
}

// LoadForest reads and validates a JSON isolation forest artifact.
func LoadForest(path string) (*IsolationForest, string, error) {
	data, hash, err := readArtifact("forest", path)
	if err != nil {
		return nil, "", err
	}
	var f IsolationForest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("detector: parse forest artifact: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, "", fmt.Errorf("detector: %s: %w", path, err)
	}
	return &f, hash, nil
}
