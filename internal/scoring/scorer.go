// Package scoring computes risk scores from feature vectors.
package scoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Strategy produces a raw score in [0,1] from a feature vector. Strategies
// must be deterministic: the same vector always yields the same score.
type Strategy interface {
	// Name tags the scores this strategy produces, e.g. "model-v3".
	Name() string

	// Score returns the raw score and the risk reasons that fired.
	// Model strategies return no reasons.
	Score(ctx context.Context, fv *domain.FeatureVector) (float64, []string, error)
}

// Scorer wraps a primary strategy with a deterministic fallback. When the
// primary fails the fallback takes over for that transaction; the scorer
// itself only errors when both strategies fail.
type Scorer struct {
	mu         sync.RWMutex
	primary    Strategy
	fallback   Strategy
	thresholds domain.Thresholds
	logger     *slog.Logger
}

// NewScorer creates a scorer. primary may be nil, in which case every score
// comes from the fallback strategy.
func NewScorer(primary Strategy, fallback Strategy, thresholds domain.Thresholds, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		primary:    primary,
		fallback:   fallback,
		thresholds: thresholds,
		logger:     logger.With("component", "scoring"),
	}
}

// Score computes the final score for a transaction's feature vector,
// classifying it against the current thresholds.
func (s *Scorer) Score(ctx context.Context, tenantID, txID string, fv *domain.FeatureVector) (*domain.Score, error) {
	s.mu.RLock()
	primary, fallback := s.primary, s.fallback
	thresholds := s.thresholds
	s.mu.RUnlock()

	strategy := primary
	var value float64
	var reasons []string
	var err error

	if strategy != nil {
		value, reasons, err = strategy.Score(ctx, fv)
		if err != nil {
			s.logger.WarnContext(ctx, "primary strategy failed, using fallback",
				"strategy", strategy.Name(),
				"tx_id", txID,
				"error", err,
			)
			strategy = nil
		}
	}

	if strategy == nil {
		strategy = fallback
		value, reasons, err = strategy.Score(ctx, fv)
		if err != nil {
			return nil, err
		}
	}

	value = clamp(value)

	return &domain.Score{
		TxID:         txID,
		TenantID:     tenantID,
		Value:        value,
		Level:        thresholds.Level(value),
		IsFraud:      thresholds.IsFraud(value),
		ModelVersion: strategy.Name(),
		Reasons:      reasons,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// Thresholds returns the current threshold set.
func (s *Scorer) Thresholds() domain.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// SetThresholds swaps the threshold set. Used by config hot-reload; cached
// scores keep the classification they were computed with.
func (s *Scorer) SetThresholds(t domain.Thresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
}

// SetPrimary swaps the primary strategy, e.g. after a model reload.
func (s *Scorer) SetPrimary(strategy Strategy) {
	s.mu.Lock()
	s.primary = strategy
	s.mu.Unlock()
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
