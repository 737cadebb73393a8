// Package config handles application configuration from environment variables
package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Open Payments client identity
	KeyID         string // Key id advertised in outbound HTTP signatures
	PrivateKey    string // Base64-encoded ed25519 seed
	WalletAddress string // Operator wallet address URL (client identity in grant requests)

	// Payment flow settings
	RedirectBaseURL       string        // Base URL the authorization server redirects back to
	IncomingPaymentExpiry time.Duration // How long a created incoming payment stays payable

	// HTTP surface
	CORSOrigins []string // Publisher site origins allowed to call the API

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty
}

// Defaults
const (
	DefaultPort                  = "8080"
	DefaultEnv                   = "development"
	DefaultLogLevel              = "info"
	DefaultIncomingPaymentExpiry = 10 * time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		KeyID:                 os.Getenv("OP_KEY_ID"),
		PrivateKey:            os.Getenv("OP_PRIVATE_KEY"), // Required, no default
		WalletAddress:         os.Getenv("OP_WALLET_ADDRESS"),
		RedirectBaseURL:       os.Getenv("REDIRECT_BASE_URL"),
		IncomingPaymentExpiry: getEnvDuration("INCOMING_PAYMENT_EXPIRY", DefaultIncomingPaymentExpiry),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "*")),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("OP_PRIVATE_KEY is required")
	}
	seed, err := base64.StdEncoding.DecodeString(c.PrivateKey)
	if err != nil {
		return fmt.Errorf("OP_PRIVATE_KEY must be base64: %w", err)
	}
	if len(seed) != 32 {
		return fmt.Errorf("OP_PRIVATE_KEY must decode to a 32-byte ed25519 seed, got %d bytes", len(seed))
	}

	if c.KeyID == "" {
		return fmt.Errorf("OP_KEY_ID is required")
	}

	if c.RedirectBaseURL == "" {
		return fmt.Errorf("REDIRECT_BASE_URL is required")
	}
	u, err := url.Parse(c.RedirectBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("REDIRECT_BASE_URL must be an absolute URL")
	}

	if c.WalletAddress != "" && !strings.HasPrefix(c.WalletAddress, "https://") {
		return fmt.Errorf("OP_WALLET_ADDRESS must be an https:// URL")
	}

	if c.IncomingPaymentExpiry <= 0 {
		return fmt.Errorf("INCOMING_PAYMENT_EXPIRY must be positive")
	}

	return nil
}

// PrivateKeySeed returns the decoded ed25519 seed.
// Validate must have been called first.
func (c *Config) PrivateKeySeed() []byte {
	seed, _ := base64.StdEncoding.DecodeString(c.PrivateKey)
	return seed
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Accept bare seconds for convenience
		if secs, serr := strconv.Atoi(v); serr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
