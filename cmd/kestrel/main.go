// Kestrel - Real-time transaction risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; environment variables win over file values
	_ = godotenv.Load()

	// Load configuration: YAML file when KESTREL_CONFIG is set, tier
	// defaults otherwise
	var loader *config.Loader
	cfg := domain.DefaultConfig()

	if path := os.Getenv("KESTREL_CONFIG"); path != "" {
		var err error
		loader, err = config.NewLoader(path)
		if err != nil {
			slog.Error("failed to load configuration", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loader.Config()
	} else if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
	}

	// Initialize structured logger from config
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Feature Extractor backed by the repository
	extractor := features.NewExtractor(repo, logger)

	// Initialize Scorer: optional model or expression primary, rule-based
	// fallback always available
	primary, err := buildPrimaryStrategy(cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize scoring strategy", "error", err)
		os.Exit(1)
	}
	scorer := scoring.NewScorer(primary, scoring.NewFallbackStrategy(), cfg.Scoring.Thresholds, logger)
	if primary != nil {
		slog.Info("primary scoring strategy loaded", "version", primary.Name())
	} else {
		slog.Info("no primary strategy configured, using fallback rules")
	}

	// Initialize Alert Manager
	alertManager := alerts.NewManager(repo, busImpl, logger)

	// Initialize Scoring Pipeline
	p := pipeline.New(repo, extractor, scorer, cacheImpl, alertManager, busImpl, cfg.Scoring, logger)

	// Hot-reload scoring config when the file changes
	if loader != nil {
		loader.OnChange(func(next *domain.Config) {
			p.SetScoringConfig(next.Scoring)
			if strategy, err := buildPrimaryStrategy(next.Scoring); err != nil {
				slog.Error("reload kept previous scoring strategy", "error", err)
			} else {
				scorer.SetPrimary(strategy)
			}
			slog.Info("scoring configuration reloaded",
				"fraud_cutoff", next.Scoring.Thresholds.FraudCutoff,
				"cache_ttl_minutes", next.Scoring.CacheTTLMinutes,
			)
		})

		stopWatch, err := loader.Watch()
		if err != nil {
			slog.Error("failed to watch configuration file", "error", err)
		} else {
			defer stopWatch()
			slog.Info("watching configuration file for changes")
		}
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.New(busImpl, p, logger)

		tenantIDs := parseTenants(os.Getenv("KESTREL_TENANTS"))
		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, p, repo, cacheImpl, busImpl, alertManager, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// buildPrimaryStrategy constructs the configured primary strategy, or nil
// when neither a model nor an expression is configured.
func buildPrimaryStrategy(cfg domain.ScoringConfig) (scoring.Strategy, error) {
	if cfg.ModelPath != "" {
		return scoring.LoadModel(cfg.ModelPath)
	}
	if cfg.CustomExpression != "" {
		return scoring.NewExpressionStrategy(cfg.CustomExpression)
	}
	return nil, nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("KESTREL_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseTenants(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║     Transaction Risk Scoring Engine       ║")
	fmt.Println("  ║      Every transaction, scored live.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                - Score a transaction")
	fmt.Println("    GET  /scores/{txId}        - Get cached score")
	fmt.Println("    GET  /transactions/{id}    - Get transaction by ID")
	fmt.Println("    GET  /alerts               - List open alerts")
	fmt.Println("    GET  /alerts/{id}          - Get alert by ID")
	fmt.Println("    POST /alerts/{id}/resolve  - Resolve an alert")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println("    GET  /metrics              - Prometheus metrics")
	fmt.Println()
}
