// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/jpgonzalezra/dp2p-engine/internal/fees"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Engine identity
	OwnerAddress    string // privileged authority for agents/fees/treasury
	InstanceAddress string // deployment identity mixed into every escrow id

	// Fees
	PlatformFeeBPS int64 // initial platform fee in basis points

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultPlatformFeeBPS = 50 // 0.50%
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OwnerAddress:    os.Getenv("OWNER_ADDRESS"),
		InstanceAddress: os.Getenv("INSTANCE_ADDRESS"),
		PlatformFeeBPS:  getEnvInt64("PLATFORM_FEE_BPS", DefaultPlatformFeeBPS),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.OwnerAddress == "" {
		return fmt.Errorf("OWNER_ADDRESS is required")
	}
	if !validation.IsValidEthAddress(c.OwnerAddress) {
		return fmt.Errorf("OWNER_ADDRESS must be a 0x-prefixed 20-byte hex address")
	}

	if c.InstanceAddress == "" {
		return fmt.Errorf("INSTANCE_ADDRESS is required")
	}
	if !validation.IsValidEthAddress(c.InstanceAddress) {
		return fmt.Errorf("INSTANCE_ADDRESS must be a 0x-prefixed 20-byte hex address")
	}

	if err := fees.CheckPlatformFee(c.PlatformFeeBPS); err != nil {
		return fmt.Errorf("PLATFORM_FEE_BPS must be between 0 and %d", fees.MaxPlatformFeeBPS)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
