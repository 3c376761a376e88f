// Package alerts manages the lifecycle of fraud alerts.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Manager raises alerts for fraud-flagged scores and handles their
// resolution. Alerts are durable and survive restarts; an alert can only
// move from Open to Resolved, never back.
type Manager struct {
	store  domain.AlertStore
	bus    domain.EventBus
	logger *slog.Logger
}

// NewManager creates an alert manager. bus may be nil, in which case raised
// alerts are persisted but no event is published.
func NewManager(store domain.AlertStore, bus domain.EventBus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		bus:    bus,
		logger: logger.With("component", "alerts"),
	}
}

// Create raises an alert from a fraud-flagged score. The alert is persisted
// before the event is published; a publish failure is logged but does not
// fail the call. Duplicate scoring of the same transaction raises duplicate
// alerts; deduplication is the operator's concern.
func (m *Manager) Create(ctx context.Context, tenantID string, score *domain.Score) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if score == nil || score.TxID == "" {
		return nil, fmt.Errorf("%w: score with transaction id is required", domain.ErrInvalidInput)
	}

	alert := &domain.Alert{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		TxID:      score.TxID,
		Type:      domain.AlertTypeFraudScore,
		Score:     score.Value,
		Level:     score.Level,
		Status:    domain.AlertOpen,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.SaveAlert(ctx, tenantID, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	m.logger.InfoContext(ctx, "alert raised",
		"alert_id", alert.ID,
		"tx_id", alert.TxID,
		"score", alert.Score,
		"level", alert.Level,
	)

	m.publish(ctx, tenantID, alert)

	return alert, nil
}

// ListActive returns all open alerts for a tenant, newest first.
func (m *Manager) ListActive(ctx context.Context, tenantID string) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	return m.store.ListAlertsByStatus(ctx, tenantID, domain.AlertOpen)
}

// Get returns a single alert by ID.
func (m *Manager) Get(ctx context.Context, tenantID, alertID string) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	return m.store.GetAlert(ctx, tenantID, alertID)
}

// Resolve closes an open alert. Returns ErrNotFound for a missing alert and
// ErrInvalidState when the alert is already resolved.
func (m *Manager) Resolve(ctx context.Context, tenantID, alertID, resolvedBy, notes string) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	alert, err := m.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}

	if alert.Status != domain.AlertOpen {
		return nil, fmt.Errorf("%w: alert %s is already %s", domain.ErrInvalidState, alertID, alert.Status)
	}

	now := time.Now().UTC()
	alert.Status = domain.AlertResolved
	alert.ResolvedBy = resolvedBy
	alert.Notes = notes
	alert.ResolvedAt = &now

	if err := m.store.UpdateAlert(ctx, tenantID, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	m.logger.InfoContext(ctx, "alert resolved",
		"alert_id", alert.ID,
		"resolved_by", resolvedBy,
	)

	return alert, nil
}

func (m *Manager) publish(ctx context.Context, tenantID string, alert *domain.Alert) {
	if m.bus == nil {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to marshal alert event", "error", err)
		return
	}

	if err := m.bus.Publish(ctx, tenantID, domain.TopicAlertRaised, payload); err != nil {
		m.logger.WarnContext(ctx, "failed to publish alert event",
			"alert_id", alert.ID,
			"error", err,
		)
	}
}
