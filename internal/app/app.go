// Package app wires the configured components shared by the commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"autopay-tips/internal/autopay"
	"autopay-tips/internal/config"
	"autopay-tips/internal/ethrpc"
	"autopay-tips/internal/multicall"
	"autopay-tips/internal/pricesource"
	"autopay-tips/internal/registry"
	"autopay-tips/internal/storage"
	chstore "autopay-tips/internal/storage/clickhouse"
	"autopay-tips/internal/storage/memory"
	"autopay-tips/internal/storage/migrations"
	pgstore "autopay-tips/internal/storage/postgres"
	"autopay-tips/internal/suggest"
	"autopay-tips/internal/watch"
)

// App holds the components built from one configuration.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Client    ethrpc.Client
	Registry  *registry.Registry
	Suggester *suggest.Suggester
}

// New builds the chain client, registry, price sources and suggester.
// It does not touch the network.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	sources, err := cfg.BuildPriceSources(reg)
	if err != nil {
		return nil, fmt.Errorf("build price sources: %w", err)
	}

	opts := []ethrpc.ClientOption{ethrpc.WithMaxRetries(cfg.RPC.MaxRetries)}
	if cfg.RPC.TimeoutSeconds > 0 {
		opts = append(opts, ethrpc.WithTimeout(cfg.RPCTimeout()))
	}
	if cfg.RPC.RateLimitRPS > 0 {
		opts = append(opts, ethrpc.WithRateLimit(cfg.RPC.RateLimitRPS, cfg.RPC.RateLimitBurst))
	}
	client := ethrpc.NewHTTPClient(cfg.RPC.HTTP, opts...)

	return newApp(cfg, logger, client, reg, sources), nil
}

func newApp(cfg config.Config, logger *zap.Logger, client ethrpc.Client, reg *registry.Registry, sources map[string]pricesource.Source) *App {
	gateway := multicall.NewGateway(multicall.Options{
		Client:       client,
		Address:      cfg.MulticallAddress(),
		MaxBatchSize: cfg.Contracts.MaxBatchSize,
		Logger:       logger.Named("multicall"),
	})
	prices := pricesource.NewRouter(pricesource.RouterOptions{
		Registry: reg,
		Sources:  sources,
		Fallback: cfg.Prices.Fallback,
		Logger:   logger.Named("prices"),
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Registry: reg,
		Suggester: suggest.Assemble(suggest.Deps{
			Gateway:  gateway,
			Contract: autopay.NewContract(cfg.AutopayAddress()),
			Registry: reg,
			Prices:   prices,
			Logger:   logger.Named("suggest"),
		}),
	}
}

// Clock returns the block-time clock of the configured chain.
func (a *App) Clock() watch.Clock {
	return watch.NewBlockClock(a.Client, a.Config.Watch.WallClockFallback, a.Logger.Named("clock"))
}

// Stores holds the suggestion log and tip snapshot stores.
type Stores struct {
	Suggestions storage.SuggestionStore
	Snapshots   storage.TipSnapshotStore
	close       []func()
}

// Close releases database connections.
func (s *Stores) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
}

// OpenStores returns memory stores, or connects to PostgreSQL and ClickHouse
// and applies the embedded migrations.
func (a *App) OpenStores(ctx context.Context) (*Stores, error) {
	if a.Config.Storage.UseMemory {
		return &Stores{
			Suggestions: memory.NewSuggestionStore(),
			Snapshots:   memory.NewTipSnapshotStore(),
		}, nil
	}

	stores := &Stores{}

	pool, err := pgstore.NewPool(ctx, a.Config.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	stores.close = append(stores.close, pool.Close)
	if err := migrations.RunPostgresMigrations(ctx, pool, a.Logger.Named("migrations")); err != nil {
		stores.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, a.Config.Storage.ClickhouseDSN, a.Logger.Named("migrations"))
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	stores.close = append(stores.close, func() { _ = conn.Close() })

	stores.Suggestions = pgstore.NewSuggestionStore(pool)
	stores.Snapshots = chstore.NewTipSnapshotStore(conn)
	return stores, nil
}

// Heads opens the newHeads subscription client when the watch loop is
// configured to use it, nil otherwise.
func (a *App) Heads(ctx context.Context) (ethrpc.WSClient, error) {
	if !a.Config.Watch.OnNewHeads {
		return nil, nil
	}
	ws, err := ethrpc.NewWSClient(ctx, a.Config.RPC.WS, nil, a.Logger.Named("ws"))
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	return ws, nil
}

// Watcher builds the watch loop over the given stores.
func (a *App) Watcher(stores *Stores, heads ethrpc.WSClient) *watch.Runner {
	return watch.NewRunner(watch.Options{
		Suggester:    a.Suggester,
		Clock:        a.Clock(),
		Suggestions:  stores.Suggestions,
		Snapshots:    stores.Snapshots,
		Heads:        heads,
		Schedule:     a.Config.Watch.Schedule,
		CycleTimeout: a.Config.CycleTimeout(),
		Logger:       a.Logger.Named("watch"),
	})
}
