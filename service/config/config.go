package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// Solana configuration
	SolanaRPCURL  string
	SolanaNetwork string // "mainnet" or "devnet", used for explorer links and Solana Pay URLs

	// RPCTimeout bounds every individual RPC call.
	RPCTimeout time.Duration

	// Verification polling configuration. A submitted signature is polled with
	// exponential backoff until it reaches finality, VerifyMaxAttempts polls have
	// been made, or VerifyBudget has elapsed, whichever comes first.
	VerifyMaxAttempts    int
	VerifyInitialBackoff time.Duration
	VerifyBudget         time.Duration

	// Object storage configuration
	GCSBucketName      string
	GCSCredentialsFile string // optional, falls back to application default credentials
	SignedURLTTL       time.Duration
	MaxUploadBytes     int64

	// NATS configuration. Empty URL disables event publishing.
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "mainnet")
	if cfg.SolanaNetwork != "mainnet" && cfg.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be 'mainnet' or 'devnet', got %q", cfg.SolanaNetwork))
	}

	rpcTimeout, err := parseDuration("SOLANA_RPC_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = rpcTimeout
	}

	// Verification polling configuration
	maxAttempts, err := parseInt("VERIFY_MAX_ATTEMPTS", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.VerifyMaxAttempts = maxAttempts
	}

	initialBackoff, err := parseDuration("VERIFY_INITIAL_BACKOFF", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.VerifyInitialBackoff = initialBackoff
	}

	budget, err := parseDuration("VERIFY_BUDGET", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.VerifyBudget = budget
	}

	// Object storage configuration
	cfg.GCSBucketName = os.Getenv("GCS_BUCKET_NAME")
	if cfg.GCSBucketName == "" {
		errs = append(errs, fmt.Errorf("GCS_BUCKET_NAME is required"))
	}
	cfg.GCSCredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")

	signedTTL, err := parseDuration("SIGNED_URL_TTL", "15m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SignedURLTTL = signedTTL
	}

	maxUpload, err := parseInt("MAX_UPLOAD_BYTES", 50<<20)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxUploadBytes = int64(maxUpload)
	}

	// NATS configuration (optional)
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.GCSBucketName == "" {
		errs = append(errs, fmt.Errorf("GCSBucketName is required"))
	}

	if c.RPCTimeout < time.Second {
		errs = append(errs, fmt.Errorf("RPCTimeout must be at least 1 second"))
	}

	if c.VerifyMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("VerifyMaxAttempts must be at least 1"))
	}

	if c.VerifyInitialBackoff <= 0 {
		errs = append(errs, fmt.Errorf("VerifyInitialBackoff must be positive"))
	}

	if c.VerifyBudget < c.RPCTimeout {
		errs = append(errs, fmt.Errorf("VerifyBudget (%v) cannot be smaller than RPCTimeout (%v)",
			c.VerifyBudget, c.RPCTimeout))
	}

	if c.SignedURLTTL <= 0 {
		errs = append(errs, fmt.Errorf("SignedURLTTL must be positive"))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MaxUploadBytes must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
