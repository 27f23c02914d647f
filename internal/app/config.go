package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (RIHLA_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (RIHLA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Memory       bool   `default:"false" usage:"Serve from an in-memory store seeded with the default catalog" flag:"memory"`
	DevAPIKey    string `usage:"API key registered at startup in memory mode" flag:"dev-api-key"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (RIHLA_API_KEY_PEPPER)" flag:"api-key-pepper"`
	JWT          JWTConfig
	Redis        RedisConfig
	Order        OrderConfig
	Tax          TaxConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// JWTConfig controls bearer token verification.
type JWTConfig struct {
	Secret string `usage:"HS256 secret for bearer tokens; bearer auth is off when empty" flag:"jwt-secret"`
	Issuer string `usage:"Required iss claim, if set" flag:"jwt-issuer"`
}

// RedisConfig selects the idempotency key store. An empty Addr keeps keys in
// process memory.
type RedisConfig struct {
	Addr           string        `usage:"Redis address for idempotency keys" flag:"redis-addr"`
	Password       string        `usage:"Redis password" flag:"redis-password"`
	DB             int           `default:"0" usage:"Redis database" flag:"redis-db"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long an Idempotency-Key is remembered" flag:"idempotency-ttl"`
}

// OrderConfig tunes order placement.
type OrderConfig struct {
	DefaultCurrency string        `default:"SAR" usage:"Currency used when an order names none" flag:"default-currency"`
	MaxAttempts     int           `default:"3" usage:"Placement attempts on store conflicts" flag:"order-max-attempts"`
	RetryBackoff    time.Duration `default:"20ms" usage:"Base backoff between placement attempts" flag:"order-retry-backoff"`
}

// TaxConfig controls VAT for currencies outside the fixed table.
type TaxConfig struct {
	DefaultRate string `default:"0" usage:"VAT rate for currencies not in the tax table" flag:"tax-default-rate"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Burst size and requests refilled per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit refill window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RIHLA",
		Files:     []string{"config.yaml", "/etc/rihla/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.Memory {
		return errors.New("database URL is required: set RIHLA_DATABASE_URL or DATABASE_URL, or run with --memory")
	}
	if _, err := c.Tax.Rate(); err != nil {
		return err
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// Rate parses DefaultRate.
func (t TaxConfig) Rate() (decimal.Decimal, error) {
	if t.DefaultRate == "" {
		return decimal.Zero, nil
	}
	r, err := decimal.NewFromString(t.DefaultRate)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse tax default rate %q", t.DefaultRate)
	}
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Errorf("tax default rate %s is outside [0, 1]", r)
	}
	return r, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's RIHLA_-prefixed configuration.
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
