// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8000"`

	// Auth
	TokenSecret   string        `env:"TOKEN_SECRET"`
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME" envDefault:"24h"`

	// Rate limiting
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitBase   int           `env:"RATE_LIMIT_BASE" envDefault:"60"`
	FreeMultiplier  int           `env:"TIER_MULTIPLIER_FREE" envDefault:"1"`
	BetaMultiplier  int           `env:"TIER_MULTIPLIER_BETA" envDefault:"5"`
	PremMultiplier  int           `env:"TIER_MULTIPLIER_PREMIUM" envDefault:"5"`
	// Pre-auth IP limit applied to /auth/login only.
	LoginRatePerMin int `env:"LOGIN_RATE_PER_MIN" envDefault:"30"`

	// Response cache
	CacheEnabled  bool          `env:"CACHE_ENABLED" envDefault:"true"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	CacheCapacity int           `env:"CACHE_CAPACITY" envDefault:"10000"`
	// CacheBackend selects "memory" or "redis".
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// Worker fleet
	WorkerHost       string        `env:"WORKER_HOST" envDefault:"localhost"`
	ProbeInterval    time.Duration `env:"PROBE_INTERVAL" envDefault:"30s"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`
	InferenceTimeout time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"30s"`
	SynthesisTimeout time.Duration `env:"SYNTHESIS_TIMEOUT" envDefault:"60s"`
	// WorkerCatalogue optionally points at a YAML catalogue file; when
	// empty the compiled-in ninefold catalogue is used.
	WorkerCatalogue string `env:"WORKER_CATALOGUE"`

	// Training
	TrainingWorkspace string `env:"TRAINING_WORKSPACE" envDefault:"./workspace"`
	TrainingPhases    string `env:"TRAINING_PHASES"`

	// Audit stream (disabled when no brokers configured)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic   string   `env:"AUDIT_TOPIC" envDefault:"gateway.audit"`

	// HTTP server
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Observability
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ninefold-gateway"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// TierMultiplier returns the bucket-capacity multiplier for a tier name.
// Unknown tiers fall back to the free multiplier.
func (c Config) TierMultiplier(tier string) int {
	switch strings.ToLower(tier) {
	case "beta":
		return c.BetaMultiplier
	case "premium":
		return c.PremMultiplier
	default:
		return c.FreeMultiplier
	}
}

// AuditEnabled reports whether audit streaming is configured.
func (c Config) AuditEnabled() bool { return len(c.KafkaBrokers) > 0 }
