package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// Wallet is one watched address with its human-readable nickname.
type Wallet struct {
	Address  string
	Nickname string
}

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watch configuration
	Wallets      []Wallet
	PollInterval time.Duration
	MinInterval  time.Duration
	FetchTimeout time.Duration
	FetchLimit   int

	// Analytics configuration
	AnalyticsWindowDays int

	// Price configuration
	PriceLookupsEnabled bool
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "txpulse-wallet-watching")

	// Watched wallets
	wallets, err := parseWallets(os.Getenv("WATCH_WALLETS"))
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Wallets = wallets
	}

	// Watch cadence
	pollInterval, err := parseDuration("POLL_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	minInterval, err := parseDuration("MIN_POLL_INTERVAL", "5s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinInterval = minInterval
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchTimeout = fetchTimeout
	}

	fetchLimit, err := parseInt("FETCH_LIMIT", 1000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchLimit = fetchLimit
	}

	// Analytics configuration
	windowDays, err := parseInt("ANALYTICS_WINDOW_DAYS", 30)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AnalyticsWindowDays = windowDays
	}

	// Price configuration
	cfg.PriceLookupsEnabled = getEnvOrDefault("PRICE_LOOKUPS_ENABLED", "true") == "true"

	if cfg.MinInterval > cfg.PollInterval {
		errs = append(errs, fmt.Errorf("MIN_POLL_INTERVAL (%v) cannot be greater than POLL_INTERVAL (%v)",
			cfg.MinInterval, cfg.PollInterval))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
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

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(c.Wallets) == 0 {
		errs = append(errs, fmt.Errorf("at least one watched wallet is required"))
	}

	if c.MinInterval > c.PollInterval {
		errs = append(errs, fmt.Errorf("MinInterval cannot be greater than PollInterval"))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.AnalyticsWindowDays < 1 {
		errs = append(errs, fmt.Errorf("AnalyticsWindowDays must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// parseWallets parses the WATCH_WALLETS value: a comma-separated list of
// "address=Nickname" pairs, e.g.
//
//	WATCH_WALLETS="9xQeW...=Main Treasury,7pLmN...=Ops Wallet"
//
// Addresses must be valid base58 public keys and nicknames must be unique
// case-insensitively, since analytics resolution is case-insensitive.
func parseWallets(raw string) ([]Wallet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("WATCH_WALLETS is required")
	}

	var wallets []Wallet
	seenAddr := make(map[string]bool)
	seenNick := make(map[string]bool)

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		address, nickname, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("WATCH_WALLETS: entry %q is not in address=Nickname form", entry)
		}
		address = strings.TrimSpace(address)
		nickname = strings.TrimSpace(nickname)

		if _, err := solanago.PublicKeyFromBase58(address); err != nil {
			return nil, fmt.Errorf("WATCH_WALLETS: invalid address %q: %w", address, err)
		}
		if nickname == "" {
			return nil, fmt.Errorf("WATCH_WALLETS: missing nickname for address %q", address)
		}

		if seenAddr[address] {
			return nil, fmt.Errorf("WATCH_WALLETS: duplicate address %q", address)
		}
		lower := strings.ToLower(nickname)
		if seenNick[lower] {
			return nil, fmt.Errorf("WATCH_WALLETS: duplicate nickname %q", nickname)
		}
		seenAddr[address] = true
		seenNick[lower] = true

		wallets = append(wallets, Wallet{Address: address, Nickname: nickname})
	}

	if len(wallets) == 0 {
		return nil, fmt.Errorf("WATCH_WALLETS contains no wallets")
	}
	return wallets, nil
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
