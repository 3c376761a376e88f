// Package pipeline orchestrates the end-to-end scoring flow.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Pipeline runs one transaction through cache check, feature extraction,
// scoring, cache store, and alert check. A cached score inside its TTL is
// authoritative and short-circuits the rest of the flow.
type Pipeline struct {
	repo      domain.Repository
	extractor *features.Extractor
	scorer    *scoring.Scorer
	cache     domain.Cache
	alerts    *alerts.Manager
	bus       domain.EventBus
	logger    *slog.Logger
	tracer    trace.Tracer

	mu            sync.RWMutex
	cacheTTL      time.Duration
	latencyBudget time.Duration
}

// New creates a scoring pipeline. repo and bus may be nil; the pipeline then
// skips transaction persistence and event publishing.
func New(
	repo domain.Repository,
	extractor *features.Extractor,
	scorer *scoring.Scorer,
	cache domain.Cache,
	alertManager *alerts.Manager,
	eventBus domain.EventBus,
	cfg domain.ScoringConfig,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:          repo,
		extractor:     extractor,
		scorer:        scorer,
		cache:         cache,
		alerts:        alertManager,
		bus:           eventBus,
		logger:        logger.With("component", "pipeline"),
		tracer:        otel.Tracer("kestrel/pipeline"),
		cacheTTL:      cfg.CacheTTL(),
		latencyBudget: cfg.LatencyBudget(),
	}
}

// Score runs the full pipeline for one transaction. The only caller-visible
// failure is a malformed transaction; infrastructure failures degrade
// individual stages instead of failing the request.
func (p *Pipeline) Score(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.Score, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if tx == nil || tx.ID == "" {
		return nil, fmt.Errorf("%w: transaction with id is required", domain.ErrInvalidInput)
	}
	if err := tx.Validate(); err != nil {
		metrics.ScoringFailuresTotal.Inc()
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.score",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("tx.id", tx.ID),
		),
	)
	defer span.End()

	start := time.Now()

	// 1. Cache check. A hit is returned as-is with the Cached marker; the
	// score keeps the classification it was computed with even if thresholds
	// changed since.
	if cached := p.cacheLookup(ctx, tenantID, tx.ID); cached != nil {
		metrics.CacheHitsTotal.Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		cached.Cached = true
		return cached, nil
	}
	metrics.CacheMissesTotal.Inc()

	// 2. Persist the transaction so future window queries see it. A write
	// failure degrades history, not this request.
	if p.repo != nil {
		if err := p.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			p.logger.WarnContext(ctx, "failed to persist transaction",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	// 3. Extract features.
	fv, err := p.extractor.Extract(ctx, tenantID, tx)
	if err != nil {
		metrics.ScoringFailuresTotal.Inc()
		return nil, err
	}

	// 4. Score.
	score, err := p.scorer.Score(ctx, tenantID, tx.ID, fv)
	if err != nil {
		metrics.ScoringFailuresTotal.Inc()
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	// 5. Cache the result.
	p.mu.RLock()
	ttl := p.cacheTTL
	budget := p.latencyBudget
	p.mu.RUnlock()

	if err := p.cache.SetScore(ctx, tenantID, tx.ID, score, ttl); err != nil {
		p.logger.WarnContext(ctx, "failed to cache score",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	p.publishScore(ctx, tenantID, score)

	// 6. Alert check.
	if score.IsFraud && p.alerts != nil {
		if _, err := p.alerts.Create(ctx, tenantID, score); err != nil {
			p.logger.ErrorContext(ctx, "failed to raise alert",
				"tx_id", tx.ID,
				"error", err,
			)
		} else {
			metrics.AlertsRaisedTotal.Inc()
		}
	}

	elapsed := time.Since(start)
	metrics.ScoringDuration.Observe(elapsed.Seconds())
	metrics.ScoreDistribution.Observe(score.Value)
	metrics.ScoresTotal.WithLabelValues(string(score.Level), score.ModelVersion).Inc()

	if elapsed > budget {
		metrics.LatencyBudgetViolationsTotal.Inc()
		p.logger.WarnContext(ctx, "latency budget exceeded",
			"tx_id", tx.ID,
			"elapsed_ms", elapsed.Milliseconds(),
			"budget_ms", budget.Milliseconds(),
		)
	}

	p.logger.InfoContext(ctx, "transaction scored",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"score", score.Value,
		"level", score.Level,
		"is_fraud", score.IsFraud,
		"model", score.ModelVersion,
		"duration_ms", elapsed.Milliseconds(),
	)

	return score, nil
}

// GetScore returns the cached score for a transaction, or ErrNotFound when
// no score is cached.
func (p *Pipeline) GetScore(ctx context.Context, tenantID, txID string) (*domain.Score, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	score, err := p.cache.GetScore(ctx, tenantID, txID)
	if err != nil {
		return nil, fmt.Errorf("%w: score cache unavailable: %v", domain.ErrDependencyDegraded, err)
	}
	if score == nil {
		return nil, domain.ErrNotFound
	}

	score.Cached = true
	return score, nil
}

// SetScoringConfig applies a reloaded scoring configuration to the running
// pipeline: cache TTL, latency budget, and classification thresholds.
func (p *Pipeline) SetScoringConfig(cfg domain.ScoringConfig) {
	p.mu.Lock()
	p.cacheTTL = cfg.CacheTTL()
	p.latencyBudget = cfg.LatencyBudget()
	p.mu.Unlock()

	p.scorer.SetThresholds(cfg.Thresholds)

	p.logger.Info("scoring config applied",
		"cache_ttl", cfg.CacheTTL().String(),
		"latency_budget", cfg.LatencyBudget().String(),
		"fraud_cutoff", cfg.Thresholds.FraudCutoff,
	)
}

// cacheLookup returns a cached score, or nil on miss. A cache failure is a
// miss: the pipeline recomputes instead of failing.
func (p *Pipeline) cacheLookup(ctx context.Context, tenantID, txID string) *domain.Score {
	score, err := p.cache.GetScore(ctx, tenantID, txID)
	if err != nil {
		p.logger.WarnContext(ctx, "score cache lookup failed",
			"tx_id", txID,
			"error", err,
		)
		return nil
	}
	return score
}

func (p *Pipeline) publishScore(ctx context.Context, tenantID string, score *domain.Score) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(score)
	if err != nil {
		return
	}

	if err := p.bus.Publish(ctx, tenantID, domain.TopicScoreCompleted, payload); err != nil {
		p.logger.WarnContext(ctx, "failed to publish score event",
			"tx_id", score.TxID,
			"error", err,
		)
	}
}
