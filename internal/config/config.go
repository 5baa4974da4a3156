// Package config centralises configuration parsing for the coach context service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"example.com/coachcontext/internal/aggregate"
)

// Config captures runtime configuration values. Optional integrations stay
// disabled while their address is empty.
type Config struct {
	HTTPAddress string        `env:"HTTP_ADDRESS" envDefault:":8080"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer   string        `env:"JWT_ISSUER" envDefault:"i5e.identity"`
	JWTLeeway   time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
	TenantID    string        `env:"TENANT_ID"`

	// PostgresURL selects the Postgres sources. The seeded in-memory
	// repository serves when it is empty.
	PostgresURL    string        `env:"POSTGRES_URL"`
	DashboardLimit int           `env:"DASHBOARD_LIMIT" envDefault:"10"`
	HistoryLimit   int           `env:"HISTORY_LIMIT" envDefault:"20"`
	WeightWindow   time.Duration `env:"WEIGHT_WINDOW" envDefault:"2160h"`

	DgraphURL     string        `env:"DGRAPH_URL"`
	DgraphTimeout time.Duration `env:"DGRAPH_TIMEOUT" envDefault:"5s"`
	CatalogLimit  int           `env:"CATALOG_LIMIT" envDefault:"500"`

	AggregationPolicy aggregate.Policy
	RawPolicy         string           `env:"AGGREGATION_POLICY" envDefault:"all_or_nothing"`
	AdapterTimeout    time.Duration    `env:"ADAPTER_TIMEOUT" envDefault:"10s"`
	WaitTimeout       time.Duration    `env:"CONTEXT_WAIT_TIMEOUT" envDefault:"30s"`

	// Client caches untouched for SessionIdleTimeout are released on the next
	// sweep. Zero disables eviction.
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"12h"`
	SessionSweepEvery  time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`

	KafkaBrokers         []string `env:"KAFKA_BROKERS" envSeparator:","`
	SchemaRegistryURL    string   `env:"SCHEMA_REGISTRY_URL"`
	SessionEventsTopic   string   `env:"SESSION_EVENTS_TOPIC"`
	SessionConsumerGroup string   `env:"SESSION_CONSUMER_GROUP" envDefault:"coach-context"`
	ContextEventsTopic   string   `env:"CONTEXT_EVENTS_TOPIC" envDefault:"context_events"`

	CacheInvalidationURL   string        `env:"CACHE_INVALIDATION_URL"`
	CacheInvalidationToken string        `env:"CACHE_INVALIDATION_TOKEN"`
	InvalidationTimeout    time.Duration `env:"INVALIDATION_TIMEOUT" envDefault:"5s"`
}

// Load reads environment variables into Config, applying defaults for local dev.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	policy, err := aggregate.ParsePolicy(cfg.RawPolicy)
	if err != nil {
		return Config{}, err
	}
	cfg.AggregationPolicy = policy
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	if cfg.PostgresURL != "" && strings.TrimSpace(cfg.TenantID) == "" {
		return Config{}, fmt.Errorf("TENANT_ID is required when POSTGRES_URL is set")
	}
	if cfg.SessionIdleTimeout > 0 && cfg.SessionSweepEvery <= 0 {
		return Config{}, fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive when SESSION_IDLE_TIMEOUT is set")
	}
	if cfg.SessionEventsTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required when SESSION_EVENTS_TOPIC is set")
	}
	return cfg, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
