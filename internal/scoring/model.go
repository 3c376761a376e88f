package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ModelFile is the on-disk format for a trained logistic model.
type ModelFile struct {
	Version string             `json:"version"`
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// ModelStrategy scores with a logistic model loaded from disk. Inference is
// a weighted sum over the named features passed through a sigmoid, so the
// output is always in (0,1).
type ModelStrategy struct {
	version string
	bias    float64
	weights map[string]float64
}

// LoadModel reads a model file and builds a strategy from it.
func LoadModel(path string) (*ModelStrategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var mf ModelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}

	return NewModelStrategy(&mf)
}

// NewModelStrategy builds a strategy from an in-memory model definition.
func NewModelStrategy(mf *ModelFile) (*ModelStrategy, error) {
	if mf.Version == "" {
		return nil, fmt.Errorf("model version is required")
	}
	if len(mf.Weights) == 0 {
		return nil, fmt.Errorf("model has no weights")
	}

	// Reject weights for features the vector does not produce; a typo in
	// the model file would otherwise silently score on a missing feature.
	known := (&domain.FeatureVector{}).Map()
	for name := range mf.Weights {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("model references unknown feature %q", name)
		}
	}

	return &ModelStrategy{
		version: mf.Version,
		bias:    mf.Bias,
		weights: mf.Weights,
	}, nil
}

// Name implements Strategy.
func (s *ModelStrategy) Name() string {
	return s.version
}

// Score implements Strategy.
func (s *ModelStrategy) Score(_ context.Context, fv *domain.FeatureVector) (float64, []string, error) {
	features := fv.Map()

	z := s.bias
	for name, weight := range s.weights {
		z += weight * features[name]
	}

	return sigmoid(z), nil, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
