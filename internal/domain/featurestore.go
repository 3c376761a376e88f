package domain

import (
	"context"
	"time"
)

// FeatureStore answers aggregate queries over sliding time windows for one
// account. Windows are half-open [start, end). Each query may fail
// independently; the extractor maps failures to defaulted features.
type FeatureStore interface {
	// CountInWindow returns the number of transactions originated by the
	// account inside the window.
	CountInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error)

	// SumAmountInWindow returns the total amount originated by the account
	// inside the window.
	SumAmountInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (float64, error)

	// VarianceInWindow returns the population variance of the account's
	// transaction amounts inside the window. Zero when fewer than two
	// transactions fall in the window.
	VarianceInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (float64, error)

	// DistinctMerchantsInWindow returns the number of distinct destination
	// accounts the account paid inside the window.
	DistinctMerchantsInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error)

	// DistinctCountriesInWindow returns the number of distinct origin
	// countries seen on the account's transactions inside the window.
	DistinctCountriesInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error)

	// NetworkRiskScore returns the fraction of the account's distinct
	// counterparties inside the window that appear in at least one alerted
	// transaction. Zero when the account has no counterparties in the window.
	NetworkRiskScore(ctx context.Context, tenantID, accountID string, start, end time.Time) (float64, error)
}
