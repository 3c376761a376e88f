package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Scoring behavior: thresholds, cache TTL, latency budget, model
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"-"`
	Cache      CacheConfig      `json:"cache" yaml:"-"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"-"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ScoringConfig holds the configuration surface of the scoring pipeline.
type ScoringConfig struct {
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`

	// CacheTTLMinutes bounds how long a computed score stays authoritative.
	CacheTTLMinutes int `json:"cacheTtlMinutes" yaml:"cache_ttl_minutes"`

	// LatencyBudgetMs is the soft per-request budget. Exceeding it is logged,
	// not failed.
	LatencyBudgetMs int `json:"latencyBudgetMs" yaml:"latency_budget_ms"`

	// ModelPath points at a serialized model. Empty disables the model
	// strategy and the fallback rule set scores every transaction.
	ModelPath string `json:"modelPath" yaml:"model_path"`

	// CustomExpression is an optional CEL expression over the feature vector,
	// used as the primary strategy when no model is configured.
	CustomExpression string `json:"customExpression" yaml:"custom_expression"`
}

// CacheTTL returns the score cache TTL as a duration.
func (s ScoringConfig) CacheTTL() time.Duration {
	if s.CacheTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.CacheTTLMinutes) * time.Minute
}

// LatencyBudget returns the soft latency budget as a duration.
func (s ScoringConfig) LatencyBudget() time.Duration {
	if s.LatencyBudgetMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.LatencyBudgetMs) * time.Millisecond
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			Thresholds:      DefaultThresholds(),
			CacheTTLMinutes: 15,
			LatencyBudgetMs: 100,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
