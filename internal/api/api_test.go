package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// emptyStore returns zero aggregates, so only transaction attributes drive
// scores. The one exception is acc-bad, which carries a hot 24h window so
// fraud paths can be exercised.
type emptyStore struct{}

func (emptyStore) CountInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error) {
	if accountID == "acc-bad" {
		return 15, nil
	}
	return 0, nil
}
func (emptyStore) SumAmountInWindow(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}
func (emptyStore) VarianceInWindow(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}
func (emptyStore) DistinctMerchantsInWindow(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (emptyStore) DistinctCountriesInWindow(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (emptyStore) NetworkRiskScore(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}

// memoryAlertStore is a minimal in-memory AlertStore for API tests.
type memoryAlertStore struct {
	mu     sync.Mutex
	alerts map[string]*domain.Alert
}

func newMemoryAlertStore() *memoryAlertStore {
	return &memoryAlertStore{alerts: make(map[string]*domain.Alert)}
}

func (s *memoryAlertStore) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts[tenantID+":"+alert.ID] = &cp
	return nil
}

func (s *memoryAlertStore) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[tenantID+":"+alertID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *memoryAlertStore) ListAlertsByStatus(ctx context.Context, tenantID string, status domain.AlertStatus) ([]*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Alert
	for _, alert := range s.alerts {
		if alert.TenantID == tenantID && alert.Status == status {
			cp := *alert
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memoryAlertStore) UpdateAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[tenantID+":"+alert.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *alert
	s.alerts[tenantID+":"+alert.ID] = &cp
	return nil
}

// createTestServer wires a full in-memory pipeline behind the API.
func createTestServer() *Server {
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	scoringCfg := domain.ScoringConfig{
		Thresholds:      domain.DefaultThresholds(),
		CacheTTLMinutes: 15,
		LatencyBudgetMs: 100,
	}

	extractor := features.NewExtractor(emptyStore{}, nil)
	scorer := scoring.NewScorer(nil, scoring.NewFallbackStrategy(), scoringCfg.Thresholds, nil)
	scoreCache := cache.NewLRUCache(100)
	alertManager := alerts.NewManager(newMemoryAlertStore(), nil, nil)
	p := pipeline.New(nil, extractor, scorer, scoreCache, alertManager, nil, scoringCfg, nil)

	return NewServer(cfg, p, nil, scoreCache, nil, alertManager, "test-v1")
}

// quietRequest is a daytime, geolocated, low-amount transaction.
func quietRequest() ScoreRequest {
	return ScoreRequest{
		ID:              "tx-api-001",
		Type:            "payment",
		SourceAccountID: "acc-001",
		DestAccountID:   "acc-002",
		Amount:          5000,
		Currency:        "USD",
		Country:         "US",
		CreatedAt:       time.Date(2026, 3, 16, 14, 0, 0, 0, time.UTC),
	}
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}, tenantID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestScoreEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("QuietTransaction", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/score", quietRequest(), "tenant-001")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Value != 0.3 {
			t.Errorf("expected score 0.3, got %.2f", resp.Value)
		}
		if resp.Level != domain.RiskLow {
			t.Errorf("expected LOW, got %s", resp.Level)
		}
		if resp.IsFraud {
			t.Error("expected isFraud false")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("GeneratesTransactionID", func(t *testing.T) {
		req := quietRequest()
		req.ID = ""

		rr := doJSON(t, server, http.MethodPost, "/score", req, "tenant-001")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp ScoreResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.TxID == "" {
			t.Error("expected generated txId")
		}
	})

	t.Run("SecondScoreIsCached", func(t *testing.T) {
		req := quietRequest()
		req.ID = "tx-cached"

		rr := doJSON(t, server, http.MethodPost, "/score", req, "tenant-001")
		if rr.Code != http.StatusOK {
			t.Fatalf("first score failed: %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/score", req, "tenant-001")
		if rr.Code != http.StatusOK {
			t.Fatalf("second score failed: %d", rr.Code)
		}

		var resp ScoreResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.Cached {
			t.Error("expected cached marker on repeated score")
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/score", quietRequest(), "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(TenantIDHeader, "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingSourceAccount", func(t *testing.T) {
		req := quietRequest()
		req.SourceAccountID = ""

		rr := doJSON(t, server, http.MethodPost, "/score", req, "tenant-001")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		req := quietRequest()
		req.Amount = -100

		rr := doJSON(t, server, http.MethodPost, "/score", req, "tenant-001")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/score", quietRequest(), "tenant-001")

		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestGetScoreEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("NotFoundBeforeScoring", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/scores/tx-unknown", nil, "tenant-001")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("FoundAfterScoring", func(t *testing.T) {
		req := quietRequest()
		req.ID = "tx-lookup"
		if rr := doJSON(t, server, http.MethodPost, "/score", req, "tenant-001"); rr.Code != http.StatusOK {
			t.Fatalf("score failed: %d", rr.Code)
		}

		rr := doJSON(t, server, http.MethodGet, "/scores/tx-lookup", nil, "tenant-001")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var score domain.Score
		json.Unmarshal(rr.Body.Bytes(), &score)
		if score.TxID != "tx-lookup" {
			t.Errorf("expected tx-lookup, got %s", score.TxID)
		}
		if !score.Cached {
			t.Error("expected cached marker")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/scores/tx-lookup", nil, "tenant-other")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for other tenant, got %d", rr.Code)
		}
	})
}

func TestAlertEndpoints(t *testing.T) {
	server := createTestServer()
	tenantID := "tenant-001"

	// acc-bad carries a hot 24h window in the stub store, so this crosses the
	// fraud cutoff: base + large amount + frequency + missing geo + off hours.
	fraudReq := ScoreRequest{
		ID:              "tx-fraud-001",
		Type:            "withdrawal",
		SourceAccountID: "acc-bad",
		DestAccountID:   "acc-003",
		Amount:          60000,
		Currency:        "USD",
		CreatedAt:       time.Date(2026, 3, 16, 3, 0, 0, 0, time.UTC), // off hours, no country
	}

	t.Run("FraudScoreRaisesAlert", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/score", fraudReq, tenantID)
		if rr.Code != http.StatusOK {
			t.Fatalf("score failed: %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.IsFraud {
			t.Fatalf("expected fraud for score %.2f", resp.Value)
		}

		rr = doJSON(t, server, http.MethodGet, "/alerts", nil, tenantID)
		if rr.Code != http.StatusOK {
			t.Fatalf("list alerts failed: %d", rr.Code)
		}

		var list struct {
			Alerts []*domain.Alert `json:"alerts"`
			Count  int             `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &list)
		if list.Count != 1 {
			t.Fatalf("expected 1 open alert, got %d", list.Count)
		}
		if list.Alerts[0].TxID != "tx-fraud-001" {
			t.Errorf("expected alert for tx-fraud-001, got %s", list.Alerts[0].TxID)
		}
	})

	t.Run("ResolveAlert", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/alerts", nil, tenantID)
		var list struct {
			Alerts []*domain.Alert `json:"alerts"`
		}
		json.Unmarshal(rr.Body.Bytes(), &list)
		if len(list.Alerts) == 0 {
			t.Fatal("expected an open alert to resolve")
		}
		alertID := list.Alerts[0].ID

		resolvePath := fmt.Sprintf("/alerts/%s/resolve", alertID)
		rr = doJSON(t, server, http.MethodPost, resolvePath, ResolveAlertRequest{
			ResolvedBy: "analyst-7",
			Notes:      "confirmed false positive",
		}, tenantID)
		if rr.Code != http.StatusOK {
			t.Fatalf("resolve failed: %d: %s", rr.Code, rr.Body.String())
		}

		var alert domain.Alert
		json.Unmarshal(rr.Body.Bytes(), &alert)
		if alert.Status != domain.AlertResolved {
			t.Errorf("expected RESOLVED, got %s", alert.Status)
		}

		// Resolving again conflicts
		rr = doJSON(t, server, http.MethodPost, resolvePath, ResolveAlertRequest{
			ResolvedBy: "analyst-8",
		}, tenantID)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409 on double resolve, got %d", rr.Code)
		}
	})

	t.Run("ResolveMissingAlert", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/alerts/no-such-alert/resolve", ResolveAlertRequest{
			ResolvedBy: "analyst-7",
		}, tenantID)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ResolveRequiresResolvedBy", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/alerts/some-alert/resolve", ResolveAlertRequest{}, tenantID)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("MetricsExposed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TenantIDHeader, "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
