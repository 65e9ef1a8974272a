package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; leave empty to retain outcomes in memory only" flag:"database-url"`

	// IdempotencyRetention is how long a terminal outcome is retained and
	// replayed for duplicate order IDs. It bounds how late a caller may retry
	// a submission and still observe the original result.
	IdempotencyRetention time.Duration `default:"24h" usage:"Outcome retention window for duplicate submissions" flag:"idempotency-retention"`

	Inventory CapabilityConfig
	Payment   CapabilityConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// CapabilityConfig locates one external capability service.
type CapabilityConfig struct {
	URL string `usage:"Capability service base URL"`

	// Timeout is the capability client's own deadline; its expiry surfaces as
	// an unavailable result. The orchestrator adds no timeout of its own.
	Timeout time.Duration `default:"30s" usage:"Client-side timeout for capability calls"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos-checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.Inventory.URL == "" {
		return nil, errors.New("inventory URL is required: set POS_INVENTORY_URL")
	}
	if cfg.Payment.URL == "" {
		return nil, errors.New("payment URL is required: set POS_PAYMENT_URL")
	}
	if cfg.IdempotencyRetention <= 0 {
		return nil, errors.New("idempotency retention must be positive")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the POS_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
