// Load generator for exercising the Kestrel scoring API.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -count 10000
//
// This tool:
//   1. Generates synthetic transactions with a configurable fraud fraction
//   2. Sends each transaction to Kestrel for scoring
//   3. Re-sends a fraction of transactions to measure cache behavior
//   4. Reports latency percentiles, throughput, and score distribution
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ScoreRequest matches the Kestrel POST /score request format.
type ScoreRequest struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	SourceAccountID string    `json:"sourceAccountId"`
	DestAccountID   string    `json:"destAccountId"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Country         string    `json:"country,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ScoreResponse is the subset of the response the generator inspects.
type ScoreResponse struct {
	TxID    string  `json:"txId"`
	Value   float64 `json:"value"`
	Level   string  `json:"level"`
	IsFraud bool    `json:"isFraud"`
	Cached  bool    `json:"cached"`
}

// Metrics tracks load run results.
type Metrics struct {
	TotalSent    int64
	TotalErrors  int64
	FraudFlagged int64
	CacheHits    int64

	LevelLow      int64
	LevelMedium   int64
	LevelHigh     int64
	LevelCritical int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "loadgen-test", "Tenant ID for requests")
	count := flag.Int("count", 10000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud", 0.05, "Fraction of transactions with fraud-like attributes (0.0-1.0)")
	repeatRate := flag.Float64("repeat", 0.1, "Fraction of transactions re-sent to exercise the cache (0.0-1.0)")
	seed := flag.Int64("seed", 42, "Random seed for reproducible runs")
	verbose := flag.Bool("verbose", false, "Print each flagged transaction")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL LOADGEN - Synthetic Scoring Load           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Count:       %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Fraud Rate:  %.2f\n", *fraudRate)
	fmt.Printf("Repeat Rate: %.2f\n", *repeatRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate workload up front so the run measures the server, not the generator
	rng := rand.New(rand.NewSource(*seed))
	requests := generateWorkload(rng, *count, *fraudRate, *repeatRate)
	fmt.Printf("✓ Generated %d requests\n", len(requests))

	fmt.Printf("\nRunning load with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoad(requests, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var txTypes = []string{"payment", "transfer", "withdrawal", "deposit"}
var currencies = []string{"USD", "EUR", "GBP", "JPY"}
var countries = []string{"US", "GB", "DE", "FR", "JP", ""}

func generateWorkload(rng *rand.Rand, count int, fraudRate, repeatRate float64) []ScoreRequest {
	requests := make([]ScoreRequest, 0, count)
	now := time.Now().UTC()

	for i := 0; i < count; i++ {
		// Re-send a previous transaction to hit the score cache
		if repeatRate > 0 && len(requests) > 0 && rng.Float64() < repeatRate {
			requests = append(requests, requests[rng.Intn(len(requests))])
			continue
		}

		req := ScoreRequest{
			ID:              fmt.Sprintf("loadgen-%08d", i),
			Type:            txTypes[rng.Intn(len(txTypes))],
			SourceAccountID: fmt.Sprintf("acc-%04d", rng.Intn(500)),
			DestAccountID:   fmt.Sprintf("acc-%04d", rng.Intn(500)),
			Amount:          50 + rng.Float64()*5000,
			Currency:        currencies[rng.Intn(len(currencies))],
			Country:         countries[rng.Intn(len(countries)-1)], // skip empty for normal traffic
			CreatedAt:       now.Add(-time.Duration(rng.Intn(3600)) * time.Second),
		}

		// Fraud-like profile: large amount, missing geolocation, off hours
		if rng.Float64() < fraudRate {
			req.Type = "withdrawal"
			req.Amount = 50000 + rng.Float64()*100000
			req.Country = ""
			req.CreatedAt = time.Date(now.Year(), now.Month(), now.Day(), rng.Intn(6), rng.Intn(60), 0, 0, time.UTC)
		}

		requests = append(requests, req)
	}

	return requests
}

func runLoad(requests []ScoreRequest, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{latencies: make([]time.Duration, 0, len(requests))}

	work := make(chan ScoreRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := scoreTransaction(client, baseURL, tenantID, req)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalSent, 1)
				metrics.recordLatency(elapsed)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.ID, err)
					}
					continue
				}

				if result.Cached {
					atomic.AddInt64(&metrics.CacheHits, 1)
				}
				if result.IsFraud {
					atomic.AddInt64(&metrics.FraudFlagged, 1)
					if verbose {
						fmt.Printf("⚠ %s | Type: %-10s | Amount: $%12.2f | Score: %.2f (%s)\n",
							result.TxID, req.Type, req.Amount, result.Value, result.Level)
					}
				}

				switch result.Level {
				case "LOW":
					atomic.AddInt64(&metrics.LevelLow, 1)
				case "MEDIUM":
					atomic.AddInt64(&metrics.LevelMedium, 1)
				case "HIGH":
					atomic.AddInt64(&metrics.LevelHigh, 1)
				case "CRITICAL":
					atomic.AddInt64(&metrics.LevelCritical, 1)
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreTransaction(client *http.Client, baseURL, tenantID string, req ScoreRequest) (*ScoreResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        LOADGEN RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 RUN STATISTICS\n")
	fmt.Printf("   Total Sent:       %d\n", m.TotalSent)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Cache Hits:       %d\n", m.CacheHits)
	fmt.Printf("   Fraud Flagged:    %d\n", m.FraudFlagged)

	fmt.Printf("\n📈 SCORE DISTRIBUTION\n")
	fmt.Printf("   LOW:       %8d\n", m.LevelLow)
	fmt.Printf("   MEDIUM:    %8d\n", m.LevelMedium)
	fmt.Printf("   HIGH:      %8d\n", m.LevelHigh)
	fmt.Printf("   CRITICAL:  %8d\n", m.LevelCritical)

	m.mu.Lock()
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	m.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fmt.Printf("\n⏱️  LATENCY\n")
	fmt.Printf("   p50:   %v\n", percentile(sorted, 0.50).Round(time.Microsecond))
	fmt.Printf("   p95:   %v\n", percentile(sorted, 0.95).Round(time.Microsecond))
	fmt.Printf("   p99:   %v\n", percentile(sorted, 0.99).Round(time.Microsecond))
	if len(sorted) > 0 {
		fmt.Printf("   max:   %v\n", sorted[len(sorted)-1].Round(time.Microsecond))
	}

	fmt.Printf("\n🚀 THROUGHPUT\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalSent > 0 {
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(m.TotalSent)/duration.Seconds())
	}

	fmt.Println()
}
