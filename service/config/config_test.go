package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddr1 = "So11111111111111111111111111111111111111112"
	testAddr2 = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("WATCH_WALLETS", testAddr1+"=Main Treasury")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.MinInterval)
	assert.Equal(t, 30, cfg.AnalyticsWindowDays)
	require.Len(t, cfg.Wallets, 1)
	assert.Equal(t, testAddr1, cfg.Wallets[0].Address)
	assert.Equal(t, "Main Treasury", cfg.Wallets[0].Nickname)
}

func TestLoad_MissingSolanaRPCURL(t *testing.T) {
	os.Setenv("WATCH_WALLETS", testAddr1+"=Main Treasury")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL is required")
}

func TestLoad_MissingWallets(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "WATCH_WALLETS is required")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("WATCH_WALLETS", testAddr1+"=Main Treasury")
	os.Setenv("POLL_INTERVAL", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_MinIntervalGreaterThanPoll(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("WATCH_WALLETS", testAddr1+"=Main Treasury")
	os.Setenv("POLL_INTERVAL", "10s")
	os.Setenv("MIN_POLL_INTERVAL", "30s")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "cannot be greater than")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("WATCH_WALLETS", testAddr1+"=Main Treasury, "+testAddr2+"=Ops Wallet")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("POLL_INTERVAL", "1m")
	os.Setenv("MIN_POLL_INTERVAL", "15s")
	os.Setenv("ANALYTICS_WINDOW_DAYS", "7")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.MinInterval)
	assert.Equal(t, 7, cfg.AnalyticsWindowDays)
	require.Len(t, cfg.Wallets, 2)
	assert.Equal(t, "Ops Wallet", cfg.Wallets[1].Nickname)
}

func TestParseWallets(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
		want    int
	}{
		{
			name: "single wallet",
			raw:  testAddr1 + "=Main Treasury",
			want: 1,
		},
		{
			name: "multiple wallets with spaces",
			raw:  testAddr1 + "=Main Treasury, " + testAddr2 + "=Ops Wallet",
			want: 2,
		},
		{
			name:    "invalid address",
			raw:     "not-base58=Main Treasury",
			wantErr: "invalid address",
		},
		{
			name:    "missing nickname",
			raw:     testAddr1 + "=",
			wantErr: "missing nickname",
		},
		{
			name:    "missing separator",
			raw:     testAddr1,
			wantErr: "not in address=Nickname form",
		},
		{
			name:    "duplicate address",
			raw:     testAddr1 + "=A," + testAddr1 + "=B",
			wantErr: "duplicate address",
		},
		{
			name:    "duplicate nickname differs only by case",
			raw:     testAddr1 + "=Main Treasury," + testAddr2 + "=main treasury",
			wantErr: "duplicate nickname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallets, err := parseWallets(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, wallets, tt.want)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		SolanaRPCURL:        "https://api.mainnet-beta.solana.com",
		TemporalHost:        "localhost:7233",
		TemporalNamespace:   "default",
		TemporalTaskQueue:   "txpulse-wallet-watching",
		Wallets:             []Wallet{{Address: testAddr1, Nickname: "Main Treasury"}},
		PollInterval:        15 * time.Second,
		MinInterval:         5 * time.Second,
		AnalyticsWindowDays: 30,
	}

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_MissingWallets(t *testing.T) {
	cfg := &Config{
		SolanaRPCURL:        "https://api.mainnet-beta.solana.com",
		TemporalHost:        "localhost:7233",
		TemporalNamespace:   "default",
		TemporalTaskQueue:   "txpulse-wallet-watching",
		PollInterval:        15 * time.Second,
		MinInterval:         5 * time.Second,
		AnalyticsWindowDays: 30,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one watched wallet is required")
}

func TestValidate_TooShortInterval(t *testing.T) {
	cfg := &Config{
		SolanaRPCURL:        "https://api.mainnet-beta.solana.com",
		TemporalHost:        "localhost:7233",
		TemporalNamespace:   "default",
		TemporalTaskQueue:   "txpulse-wallet-watching",
		Wallets:             []Wallet{{Address: testAddr1, Nickname: "Main Treasury"}},
		PollInterval:        500 * time.Millisecond,
		MinInterval:         100 * time.Millisecond,
		AnalyticsWindowDays: 30,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be at least 1 second")
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("WATCH_WALLETS", testAddr1+"=Main Treasury")
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	os.Unsetenv("SOLANA_RPC_URL")
	os.Unsetenv("WATCH_WALLETS")
	os.Unsetenv("SERVER_ADDR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("NATS_URL")
	os.Unsetenv("TEMPORAL_HOST")
	os.Unsetenv("POLL_INTERVAL")
	os.Unsetenv("MIN_POLL_INTERVAL")
	os.Unsetenv("FETCH_TIMEOUT")
	os.Unsetenv("FETCH_LIMIT")
	os.Unsetenv("ANALYTICS_WINDOW_DAYS")
	os.Unsetenv("PRICE_LOOKUPS_ENABLED")
}
