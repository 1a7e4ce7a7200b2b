package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/txpulse/txpulse/service/config"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/metrics"
	"github.com/txpulse/txpulse/service/monitor"
	"github.com/txpulse/txpulse/service/notify"
	"github.com/txpulse/txpulse/service/price"
	"github.com/txpulse/txpulse/service/temporal"
)

// The worker binary is the headless variant of cmd/server: it hosts the
// change-detection engine without the HTTP API. Run one or the other per
// deployment; the address state store is in-memory and does not span
// processes.
func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
		"wallets", len(cfg.Wallets),
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Initialize the in-memory address state store, seeded with the
	// configured wallets
	store := monitor.NewStore()
	for _, w := range cfg.Wallets {
		store.GetOrCreate(w.Address, w.Nickname)
	}
	detector := monitor.NewDetector(store, metricsCollector, logger)

	// Initialize Solana RPC client
	rpcClient := ledger.NewRPCClient(cfg.SolanaRPCURL)
	ledgerClient := ledger.NewClient(rpcClient, endpointLabel(cfg.SolanaRPCURL), cfg.FetchTimeout, metricsCollector, logger)
	logger.Info("initialized solana RPC client", "endpoint", endpointLabel(cfg.SolanaRPCURL))

	// Initialize NATS publisher
	publisher, err := notify.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize notification formatter, with fiat price lookups if enabled
	var prices notify.PriceLookup
	if cfg.PriceLookupsEnabled {
		prices = price.NewService(logger)
		logger.Info("fiat price lookups enabled")
	}
	formatter := notify.NewFormatter(prices)

	// Initialize Temporal client and reconcile per-wallet schedules
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("connected to temporal for schedule management",
		"host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
	)

	wallets := make([]temporal.WalletSpec, 0, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		wallets = append(wallets, temporal.WalletSpec{Address: w.Address, Nickname: w.Nickname})
	}
	if err := temporal.ReconcileSchedules(ctx, temporalClient, wallets, cfg.PollInterval); err != nil {
		logger.Error("failed to reconcile schedules", "error", err)
		os.Exit(1)
	}
	logger.Info("wallet schedules reconciled",
		"count", len(wallets),
		"poll_interval", cfg.PollInterval,
	)

	// Initialize Temporal worker
	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Store:             store,
		LedgerClient:      ledgerClient,
		Detector:          detector,
		Publisher:         publisher,
		Formatter:         formatter,
		Metrics:           metricsCollector,
		Logger:            logger,
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"solana_rpc", endpointLabel(cfg.SolanaRPCURL),
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop worker gracefully
		logger.Info("stopping temporal worker")
		worker.Stop()
		logger.Info("temporal worker stopped")

		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// endpointLabel extracts a short identifier from the Solana RPC URL for
// metrics labeling.
// Examples:
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}

	host := parsed.Hostname()

	// Check for common RPC providers
	for _, provider := range []string{"helius", "quiknode", "alchemy", "triton", "rpcpool"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}

	// Check for official Solana endpoints
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}

	return host
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
