package domain

import (
	"time"
)

// RiskLevel is the discrete classification derived from a score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Score is the result of scoring one transaction. Scores are transient:
// reconstructible from the transaction and the feature store, and served from
// cache within the TTL window without recomputation.
type Score struct {
	TxID     string    `json:"txId"`
	TenantID string    `json:"tenantId"`
	Value    float64   `json:"value"` // always in [0,1]
	Level    RiskLevel `json:"level"`
	IsFraud  bool      `json:"isFraud"`

	// ModelVersion tags the strategy that produced the value,
	// e.g. "model-v3" or "fallback-v1".
	ModelVersion string `json:"modelVersion"`

	// Reasons lists the risk factors that fired, in rule order.
	// Empty for model-produced scores.
	Reasons []string `json:"reasons,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Cached is set when the score was served from cache rather than computed.
	Cached bool `json:"cached,omitempty"`
}

// Thresholds maps score values to risk levels and the fraud decision.
type Thresholds struct {
	Medium      float64 `json:"medium" yaml:"medium_risk_threshold"`
	High        float64 `json:"high" yaml:"high_risk_threshold"`
	FraudCutoff float64 `json:"fraudCutoff" yaml:"fraud_cutoff"`
}

// DefaultThresholds returns the standard threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Medium:      0.4,
		High:        0.7,
		FraudCutoff: 0.8,
	}
}

// Level classifies a score. Scores strictly above the fraud cutoff are
// Critical; the cutoff itself is not (0.8 exactly stays High).
func (t Thresholds) Level(score float64) RiskLevel {
	switch {
	case score > t.FraudCutoff:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// IsFraud reports whether a score crosses the fraud cutoff (strictly greater).
func (t Thresholds) IsFraud(score float64) bool {
	return score > t.FraudCutoff
}
