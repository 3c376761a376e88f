package domain

import (
	"context"
	"time"
)

// AlertStatus is the resolution state of an alert.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "OPEN"
	AlertResolved AlertStatus = "RESOLVED"
)

// AlertType classifies why an alert was raised.
type AlertType string

const (
	AlertTypeFraudScore AlertType = "FRAUD_SCORE"
)

// Alert is raised when a transaction's score crosses the fraud cutoff.
// Alerts are durable and append-only: the only permitted mutation is the
// Open -> Resolved transition.
type Alert struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	TxID     string    `json:"txId"`
	Type     AlertType `json:"type"`

	// Snapshot of the score that raised the alert
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`

	Status     AlertStatus `json:"status"`
	Notes      string      `json:"notes,omitempty"`
	ResolvedBy string      `json:"resolvedBy,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// AlertStore is the durable persistence contract for alerts.
// All methods require tenantID for strict multi-tenancy isolation.
type AlertStore interface {
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	GetAlert(ctx context.Context, tenantID string, alertID string) (*Alert, error)
	ListAlertsByStatus(ctx context.Context, tenantID string, status AlertStatus) ([]*Alert, error)
	UpdateAlert(ctx context.Context, tenantID string, alert *Alert) error
}
