package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/txpulse/txpulse/service/analytics"
	"github.com/txpulse/txpulse/service/config"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/metrics"
	"github.com/txpulse/txpulse/service/monitor"
	"github.com/txpulse/txpulse/service/notify"
	"github.com/txpulse/txpulse/service/price"
	"github.com/txpulse/txpulse/service/server"
	"github.com/txpulse/txpulse/service/temporal"
)

// The server binary runs the HTTP API and the Temporal worker in one
// process. The address state store is in-memory, so the HTTP handlers and
// the change-detection activities must share a single store instance.
// Deployments that only need the watcher can run cmd/worker instead, but
// never both against the same task queue.
func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"wallets", len(cfg.Wallets),
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize the in-memory address state store, seeded with the
	// configured wallets so nickname resolution works before the first cycle
	store := monitor.NewStore()
	for _, w := range cfg.Wallets {
		store.GetOrCreate(w.Address, w.Nickname)
	}
	detector := monitor.NewDetector(store, metricsCollector, logger)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	rpcClient := ledger.NewRPCClient(cfg.SolanaRPCURL)
	ledgerClient := ledger.NewClient(rpcClient, endpointLabel(cfg.SolanaRPCURL), cfg.FetchTimeout, metricsCollector, logger)
	logger.Info("initialized solana RPC client", "endpoint", endpointLabel(cfg.SolanaRPCURL))

	// Initialize analytics engine; the ledger client serves supplemental
	// history fetches for windows older than the observed history
	defaultWindow := time.Duration(cfg.AnalyticsWindowDays) * 24 * time.Hour
	engine := analytics.NewEngine(store, ledgerClient, defaultWindow, metricsCollector, logger)

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
	tworker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, engine, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", endpointLabel(cfg.SolanaRPCURL),
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker and HTTP server in background
	errs := make(chan error, 2)
	go func() {
		errs <- tworker.Start()
	}()
	go func() {
		errs <- httpServer.Start()
	}()

	// Wait for shutdown signal or component error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		tworker.Stop()
		logger.Info("temporal worker stopped")

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
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
