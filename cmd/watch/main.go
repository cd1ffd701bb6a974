package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"autopay-tips/internal/app"
	"autopay-tips/internal/config"
	"autopay-tips/internal/logging"
	"autopay-tips/internal/observability"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Ethereum JSON-RPC HTTP endpoint (overrides config)")
	wsEndpoint := flag.String("ws-endpoint", "", "Ethereum WebSocket endpoint (overrides config)")
	autopayAddr := flag.String("autopay", "", "Autopay contract address (overrides config)")
	schedule := flag.String("schedule", "", "Cron schedule of suggestion cycles (overrides config)")
	onNewHeads := flag.Bool("on-new-heads", false, "Run a cycle on every new block")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL and ClickHouse")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	applyFlags(&cfg, flagOverrides{
		rpcEndpoint:   *rpcEndpoint,
		wsEndpoint:    *wsEndpoint,
		autopay:       *autopayAddr,
		schedule:      *schedule,
		onNewHeads:    *onNewHeads,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		metricsAddr:   *metricsAddr,
	})

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = run(ctx, cfg, logger)

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("watch failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	// Start metrics server if enabled
	if cfg.Metrics.Addr != "" {
		srv := metricsServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("starting metrics server", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	stores, err := a.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	heads, err := a.Heads(ctx)
	if err != nil {
		return err
	}
	if heads != nil {
		defer heads.Close()
	}

	w := a.Watcher(stores, heads)

	// First cycle right away, then on the configured triggers
	if _, err := w.RunOnce(ctx); err != nil {
		logger.Error("initial cycle failed", zap.Error(err))
	}

	logger.Info("watching",
		zap.String("autopay", cfg.Contracts.Autopay),
		zap.String("schedule", cfg.Watch.Schedule),
		zap.Bool("on_new_heads", cfg.Watch.OnNewHeads),
		zap.Bool("memory_storage", cfg.Storage.UseMemory),
	)
	return w.Run(ctx)
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

type flagOverrides struct {
	rpcEndpoint, wsEndpoint, autopay, schedule string
	postgresDSN, clickhouseDSN, metricsAddr    string
	onNewHeads, useMemory                      bool
}

func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.rpcEndpoint != "" {
		cfg.RPC.HTTP = f.rpcEndpoint
	}
	if f.wsEndpoint != "" {
		cfg.RPC.WS = f.wsEndpoint
	}
	if f.autopay != "" {
		cfg.Contracts.Autopay = f.autopay
	}
	if f.schedule != "" {
		cfg.Watch.Schedule = f.schedule
	}
	if f.onNewHeads {
		cfg.Watch.OnNewHeads = true
	}
	if f.postgresDSN != "" {
		cfg.Storage.PostgresDSN = f.postgresDSN
		cfg.Storage.UseMemory = false
	}
	if f.clickhouseDSN != "" {
		cfg.Storage.ClickhouseDSN = f.clickhouseDSN
		cfg.Storage.UseMemory = false
	}
	if f.useMemory {
		cfg.Storage.UseMemory = true
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
}
