// Package features turns raw transactions into fixed-shape feature vectors.
package features

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Risk encodings for categorical transaction attributes. Unknown values get
// the highest score in the table.
var typeRisk = map[string]float64{
	"deposit":    0.1,
	"payment":    0.2,
	"purchase":   0.2,
	"transfer":   0.3,
	"withdrawal": 0.5,
}

var currencyRisk = map[string]float64{
	"USD": 0.1,
	"EUR": 0.1,
	"GBP": 0.1,
	"CHF": 0.2,
	"JPY": 0.2,
}

const (
	unknownTypeRisk     = 0.6
	unknownCurrencyRisk = 0.4
)

// Extractor builds feature vectors by combining transaction attributes with
// windowed aggregates from the feature store. Aggregate groups are fetched
// concurrently and fail independently: a failed group degrades to zero values
// so the scorer always receives a complete vector.
type Extractor struct {
	store  domain.FeatureStore
	logger *slog.Logger
}

// NewExtractor creates a feature extractor backed by the given store.
func NewExtractor(store domain.FeatureStore, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		store:  store,
		logger: logger.With("component", "features"),
	}
}

// Extract computes the feature vector for a transaction. The only error it
// returns is ErrInvalidInput for a malformed transaction; aggregate failures
// are logged and degrade their group to defaults.
func (e *Extractor) Extract(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.FeatureVector, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	fv := &domain.FeatureVector{
		Amount:       tx.Amount,
		TypeRisk:     lookupRisk(typeRisk, strings.ToLower(tx.Type), unknownTypeRisk),
		CurrencyRisk: lookupRisk(currencyRisk, strings.ToUpper(tx.Currency), unknownCurrencyRisk),
	}
	if tx.Country != "" {
		fv.HasGeo = 1
	}

	// Calendar attributes are derived in UTC so scoring is independent of
	// server locale.
	at := tx.CreatedAt.UTC()
	fv.HourOfDay = float64(at.Hour())
	fv.DayOfWeek = float64(at.Weekday())
	if at.Weekday() == time.Saturday || at.Weekday() == time.Sunday {
		fv.IsWeekend = 1
	}

	e.fetchAggregates(ctx, tenantID, tx.SourceAccountID, at, fv)

	return fv, nil
}

// fetchAggregates runs the four aggregate groups concurrently. Each group
// writes only its own fields, so no mutex is needed.
func (e *Extractor) fetchAggregates(ctx context.Context, tenantID, accountID string, at time.Time, fv *domain.FeatureVector) {
	start24h := at.Add(-24 * time.Hour)
	start7d := at.Add(-7 * 24 * time.Hour)

	var wg sync.WaitGroup
	wg.Add(4)

	// Group 1: 24h activity
	go func() {
		defer wg.Done()

		count, err := e.store.CountInWindow(ctx, tenantID, accountID, start24h, at)
		if err != nil {
			e.degrade(ctx, "activity_24h", err)
			return
		}
		sum, err := e.store.SumAmountInWindow(ctx, tenantID, accountID, start24h, at)
		if err != nil {
			e.degrade(ctx, "activity_24h", err)
			return
		}

		fv.TxCount24h = float64(count)
		fv.TotalAmount24h = sum
		fv.Frequency24h = float64(count)
		fv.VelocityAmount24h = sum
	}()

	// Group 2: 7d activity
	go func() {
		defer wg.Done()

		count, err := e.store.CountInWindow(ctx, tenantID, accountID, start7d, at)
		if err != nil {
			e.degrade(ctx, "activity_7d", err)
			return
		}
		sum, err := e.store.SumAmountInWindow(ctx, tenantID, accountID, start7d, at)
		if err != nil {
			e.degrade(ctx, "activity_7d", err)
			return
		}

		fv.TxCount7d = float64(count)
		fv.TotalAmount7d = sum
		if count > 0 {
			fv.AvgAmount7d = sum / float64(count)
		}
	}()

	// Group 3: 7d variance plus 24h counterparty spread
	go func() {
		defer wg.Done()

		variance, err := e.store.VarianceInWindow(ctx, tenantID, accountID, start7d, at)
		if err != nil {
			e.degrade(ctx, "spread", err)
			return
		}
		merchants, err := e.store.DistinctMerchantsInWindow(ctx, tenantID, accountID, start24h, at)
		if err != nil {
			e.degrade(ctx, "spread", err)
			return
		}
		countries, err := e.store.DistinctCountriesInWindow(ctx, tenantID, accountID, start24h, at)
		if err != nil {
			e.degrade(ctx, "spread", err)
			return
		}

		fv.VarAmount7d = variance
		fv.UniqueMerchants24h = float64(merchants)
		fv.UniqueCountries24h = float64(countries)
	}()

	// Group 4: network association risk
	go func() {
		defer wg.Done()

		risk, err := e.store.NetworkRiskScore(ctx, tenantID, accountID, start24h, at)
		if err != nil {
			e.degrade(ctx, "network", err)
			return
		}

		fv.NetworkRisk = risk
	}()

	wg.Wait()
}

func (e *Extractor) degrade(ctx context.Context, group string, err error) {
	metrics.FeatureGroupDegradedTotal.WithLabelValues(group).Inc()
	e.logger.WarnContext(ctx, "feature group degraded to defaults",
		"group", group,
		"error", err,
	)
}

func lookupRisk(table map[string]float64, key string, fallback float64) float64 {
	if risk, ok := table[key]; ok {
		return risk
	}
	return fallback
}
