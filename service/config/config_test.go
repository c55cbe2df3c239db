package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment for Load to succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/photopay")
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("GCS_BUCKET_NAME", "photopay-content")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mainnet", cfg.SolanaNetwork)
	assert.Equal(t, 10*time.Second, cfg.RPCTimeout)
	assert.Equal(t, 5, cfg.VerifyMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.VerifyInitialBackoff)
	assert.Equal(t, 60*time.Second, cfg.VerifyBudget)
	assert.Equal(t, 15*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("SOLANA_NETWORK", "devnet")
	t.Setenv("VERIFY_MAX_ATTEMPTS", "10")
	t.Setenv("VERIFY_BUDGET", "2m")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "devnet", cfg.SolanaNetwork)
	assert.Equal(t, 10, cfg.VerifyMaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.VerifyBudget)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("GCS_BUCKET_NAME", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
	assert.Contains(t, err.Error(), "GCS_BUCKET_NAME is required")
}

func TestLoad_InvalidNetwork(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOLANA_NETWORK", "testnet")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOLANA_NETWORK must be")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VERIFY_BUDGET", "sixty seconds")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func validConfig() *Config {
	return &Config{
		ServerAddr:           ":8080",
		DatabaseURL:          "postgres://localhost:5432/photopay",
		SolanaRPCURL:         "https://api.devnet.solana.com",
		SolanaNetwork:        "devnet",
		RPCTimeout:           10 * time.Second,
		VerifyMaxAttempts:    5,
		VerifyInitialBackoff: 2 * time.Second,
		VerifyBudget:         60 * time.Second,
		GCSBucketName:        "photopay-content",
		SignedURLTTL:         15 * time.Minute,
		MaxUploadBytes:       50 << 20,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_BudgetSmallerThanTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.VerifyBudget = 5 * time.Second
	cfg.RPCTimeout = 10 * time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VerifyBudget")
}

func TestValidate_BadPollingSettings(t *testing.T) {
	cfg := validConfig()
	cfg.VerifyMaxAttempts = 0
	cfg.VerifyInitialBackoff = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VerifyMaxAttempts")
	assert.Contains(t, err.Error(), "VerifyInitialBackoff")
}
