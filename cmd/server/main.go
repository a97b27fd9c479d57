package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/walletscope/service/config"
	"github.com/brojonat/walletscope/service/dashboard"
	"github.com/brojonat/walletscope/service/ethereum"
	"github.com/brojonat/walletscope/service/etherscan"
	"github.com/brojonat/walletscope/service/metrics"
	natspkg "github.com/brojonat/walletscope/service/nats"
	"github.com/brojonat/walletscope/service/server"
	"github.com/brojonat/walletscope/service/wallet"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Chain reads
	ethClient, err := ethereum.Dial(ctx, cfg.EthRPCURL)
	if err != nil {
		logger.Error("failed to connect to ethereum rpc", "error", err)
		os.Exit(1)
	}
	defer ethClient.Close()
	chain := ethereum.NewChainReader(ethClient, endpointLabel(cfg.EthRPCURL), m, logger)
	logger.Info("initialized ethereum RPC client", "endpoint", endpointLabel(cfg.EthRPCURL))

	// Wallet provider (optional)
	var provider wallet.Provider
	if cfg.WalletProviderURL != "" {
		rpcClient, err := ethereum.DialProvider(ctx, cfg.WalletProviderURL)
		if err != nil {
			logger.Error("failed to connect to wallet provider", "error", err)
			os.Exit(1)
		}
		defer rpcClient.Close()

		p := ethereum.NewProvider(rpcClient, cfg.ProviderPollInterval, endpointLabel(cfg.WalletProviderURL), m, logger)
		go func() {
			if err := p.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("provider watcher stopped", "error", err)
			}
		}()
		provider = p
		logger.Info("wallet provider configured", "poll_interval", cfg.ProviderPollInterval)
	} else {
		logger.Warn("no wallet provider configured, connect will report it unavailable")
	}

	// Indexing API (optional)
	var indexer wallet.Indexer
	if cfg.IndexerEnabled() {
		indexer = etherscan.NewClient(cfg.EtherscanAPIURL, cfg.EtherscanAPIKey, nil, m, logger)
		logger.Info("etherscan indexer enabled", "url", cfg.EtherscanAPIURL)
	} else {
		logger.Info("etherscan indexer disabled, transactions come from the recent block scan")
	}

	// Event publishing and streaming (optional)
	var publisher natspkg.Publisher
	var source natspkg.Source
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub

		sub, err := natspkg.NewSubscriber(cfg.NATSURL, "walletscope-sse", logger)
		if err != nil {
			logger.Error("failed to initialize NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer sub.Close()
		source = sub
	} else {
		logger.Warn("NATS_URL not set, session events will not be published")
	}

	// Connector hosted by the dashboard
	host := dashboard.New(publisher, logger)
	fetcher := wallet.NewFetcher(chain, cfg.RecentBlockWindow, m, logger)
	connector := wallet.NewConnector(provider, chain, indexer, fetcher, host, nil, m, logger)
	host.Attach(connector)

	dashboardErrors := make(chan error, 1)
	go func() {
		dashboardErrors <- host.Run(ctx)
	}()

	httpServer := server.New(cfg.ServerAddr, connector, indexer, source, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"provider", cfg.WalletProviderURL != "",
		"indexer", cfg.IndexerEnabled(),
		"nats", cfg.NATSURL != "",
		"recent_block_window", cfg.RecentBlockWindow,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case err := <-dashboardErrors:
		logger.Error("dashboard stopped", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		cancel()
		<-dashboardErrors
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

// endpointLabel reduces an RPC URL to its host so API keys in the path never
// reach metric labels or logs.
func endpointLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
