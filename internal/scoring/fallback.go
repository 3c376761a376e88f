package scoring

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FallbackVersion tags scores produced by the rule-based fallback.
const FallbackVersion = "fallback-v1"

// Rule thresholds for the fallback strategy.
const (
	fallbackBase = 0.3

	largeAmountThreshold    = 50000.0
	elevatedAmountThreshold = 10000.0
	frequencyThreshold      = 10.0
	velocityThreshold       = 50000.0

	dayStartHour = 6  // inclusive
	dayEndHour   = 22 // exclusive
)

// FallbackStrategy is the deterministic rule-based scorer used when no model
// is loaded or the model fails. It starts from a base score and adds fixed
// increments per risk factor; the amount rules are tiered, not cumulative.
type FallbackStrategy struct{}

// NewFallbackStrategy creates the rule-based fallback scorer.
func NewFallbackStrategy() *FallbackStrategy {
	return &FallbackStrategy{}
}

// Name implements Strategy.
func (s *FallbackStrategy) Name() string {
	return FallbackVersion
}

// Score implements Strategy. It never fails.
func (s *FallbackStrategy) Score(_ context.Context, fv *domain.FeatureVector) (float64, []string, error) {
	score := fallbackBase
	var reasons []string

	switch {
	case fv.Amount > largeAmountThreshold:
		score += 0.3
		reasons = append(reasons, "large_amount")
	case fv.Amount > elevatedAmountThreshold:
		score += 0.2
		reasons = append(reasons, "elevated_amount")
	}

	if fv.Frequency24h > frequencyThreshold {
		score += 0.2
		reasons = append(reasons, "high_frequency_24h")
	}

	if fv.VelocityAmount24h > velocityThreshold {
		score += 0.2
		reasons = append(reasons, "high_velocity_24h")
	}

	if fv.HasGeo == 0 {
		score += 0.1
		reasons = append(reasons, "missing_geolocation")
	}

	if fv.HourOfDay < dayStartHour || fv.HourOfDay >= dayEndHour {
		score += 0.1
		reasons = append(reasons, "off_hours")
	}

	return clamp(score), reasons, nil
}
