package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// zeroStore returns empty aggregates for every window.
type zeroStore struct{}

func (zeroStore) CountInWindow(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (zeroStore) SumAmountInWindow(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}
func (zeroStore) VarianceInWindow(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}
func (zeroStore) DistinctMerchantsInWindow(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (zeroStore) DistinctCountriesInWindow(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (zeroStore) NetworkRiskScore(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}

func newWorkerPipeline(eventBus domain.EventBus, alertStore domain.AlertStore) *pipeline.Pipeline {
	cfg := domain.ScoringConfig{
		Thresholds:      domain.DefaultThresholds(),
		CacheTTLMinutes: 15,
		LatencyBudgetMs: 100,
	}
	extractor := features.NewExtractor(zeroStore{}, nil)
	scorer := scoring.NewScorer(nil, scoring.NewFallbackStrategy(), cfg.Thresholds, nil)
	var manager *alerts.Manager
	if alertStore != nil {
		manager = alerts.NewManager(alertStore, eventBus, nil)
	}
	return pipeline.New(nil, extractor, scorer, cache.NewLRUCache(100), manager, eventBus, cfg, nil)
}

func TestWorkerScoresIngestedTransactions(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	p := newWorkerPipeline(eventBus, nil)

	w := New(eventBus, p, nil)
	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Collect score events the pipeline publishes after async scoring
	scored := make(chan *domain.Score, 1)
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicScoreCompleted, func(ctx context.Context, msg *domain.Message) error {
		var s domain.Score
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return err
		}
		scored <- &s
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	tx := &domain.Transaction{
		ID:              "tx-async-001",
		TenantID:        tenantID,
		Type:            "payment",
		SourceAccountID: "acc-001",
		DestAccountID:   "acc-002",
		Amount:          5000,
		Currency:        "USD",
		Country:         "US",
		CreatedAt:       time.Date(2026, 3, 16, 14, 0, 0, 0, time.UTC),
	}
	payload, _ := json.Marshal(tx)

	if err := eventBus.Publish(ctx, tenantID, domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case s := <-scored:
		if s.TxID != tx.ID {
			t.Errorf("expected tx %s, got %s", tx.ID, s.TxID)
		}
		if s.Value != 0.3 {
			t.Errorf("expected 0.3, got %.2f", s.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for score event")
	}

	// The score is also retrievable through the pipeline cache
	score, err := p.GetScore(ctx, tenantID, tx.ID)
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if score.Value != 0.3 {
		t.Errorf("expected cached 0.3, got %.2f", score.Value)
	}
}

func TestWorkerIgnoresMalformedMessages(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	p := newWorkerPipeline(eventBus, nil)
	w := New(eventBus, p, nil)
	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()
	time.Sleep(10 * time.Millisecond)

	if err := eventBus.Publish(ctx, tenantID, domain.TopicTransactionIngested, []byte("not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// No score should be cached for anything
	if _, err := p.GetScore(ctx, tenantID, "not json"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestWorkerStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	p := newWorkerPipeline(eventBus, nil)
	w := New(eventBus, p, nil)
	if err := w.Start(Config{TenantIDs: []string{"tenant-001", "tenant-002"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if len(w.subscriptions) != 0 {
		t.Errorf("expected subscriptions cleared, got %d", len(w.subscriptions))
	}
}
