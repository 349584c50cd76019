// Package main runs the consumption unit service:
// - HTTP API: instantiate, execute, query, migrate, token history
// - Live event stream over websocket
// - Prometheus metrics on a separate listener
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"consumption-unit/internal/address"
	"consumption-unit/internal/api"
	"consumption-unit/internal/config"
	"consumption-unit/internal/consumption"
	"consumption-unit/internal/contract"
	"consumption-unit/internal/observability"
	"consumption-unit/internal/storage"
	"consumption-unit/internal/storage/badger"
	chstore "consumption-unit/internal/storage/clickhouse"
	"consumption-unit/internal/storage/memory"
	"consumption-unit/internal/storage/migrations"
	pgstore "consumption-unit/internal/storage/postgres"
	"consumption-unit/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	validator, err := address.New(cfg.Address.Format, cfg.Address.OnCurve)
	if err != nil {
		return fmt.Errorf("address validator: %w", err)
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	metrics := observability.NewMetrics("")
	hub := stream.NewHub(nil, logger, metrics)
	defer hub.Close()

	c := consumption.New(stores.kv, validator)
	router := contract.NewRouter(c, stores.events, hub, metrics, logger)

	if cfg.Collection.AutoInstantiate {
		if err := autoInstantiate(ctx, router, cfg.Collection, logger); err != nil {
			return err
		}
	}
	if n, err := c.NumTokens(ctx); err == nil {
		metrics.SetLiveTokens(n)
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewHandler(router, c, hub, metrics, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: metricsMux,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		go func() {
			logger.Info("starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	hub.Close()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	return nil
}

// autoInstantiate creates the collection from config. An existing
// collection is left untouched.
func autoInstantiate(ctx context.Context, router *contract.Router, cfg config.CollectionConfig, logger *slog.Logger) error {
	msg, err := instantiateMsg(cfg)
	if err != nil {
		return err
	}
	_, err = router.InstantiateWith(ctx, contract.Info{Sender: cfg.Sender}, msg)
	switch {
	case err == nil:
		logger.Info("collection instantiated", "name", cfg.Name, "symbol", cfg.Symbol)
		return nil
	case errors.Is(err, consumption.ErrAlreadyInstantiated):
		logger.Info("collection already instantiated")
		return nil
	default:
		return fmt.Errorf("instantiate collection: %w", err)
	}
}

func instantiateMsg(cfg config.CollectionConfig) (consumption.InstantiateMsg, error) {
	settlement, err := config.ParseDenom(cfg.SettlementToken)
	if err != nil {
		return consumption.InstantiateMsg{}, fmt.Errorf("settlement token: %w", err)
	}
	native, err := config.ParseDenom(cfg.NativeToken)
	if err != nil {
		return consumption.InstantiateMsg{}, fmt.Errorf("native token: %w", err)
	}
	msg := consumption.InstantiateMsg{
		Name:   cfg.Name,
		Symbol: cfg.Symbol,
		CollectionInfoExtension: consumption.CollectionInfoExtension{
			SettlementToken: settlement,
			NativeToken:     native,
			PriceOracle:     cfg.PriceOracle,
		},
	}
	if cfg.Minter != "" {
		msg.Minter = &cfg.Minter
	}
	if cfg.Creator != "" {
		msg.Creator = &cfg.Creator
	}
	return msg, nil
}

// stores holds the opened backends.
type stores struct {
	kv       storage.Store
	events   storage.EventStore
	cleanups []func()
}

func (s *stores) Close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *stores, err error) {
	s := &stores{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	var pool *pgstore.Pool
	postgresPool := func() (*pgstore.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MaxConns)
		if err != nil {
			return nil, err
		}
		s.cleanups = append(s.cleanups, p.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied postgres migrations", "versions", applied)
		}
		pool = p
		return p, nil
	}

	switch cfg.Storage.Backend {
	case config.BackendBadger:
		db, err := badger.Open(ctx, cfg.Storage.BadgerDir, logger)
		if err != nil {
			return nil, err
		}
		s.cleanups = append(s.cleanups, func() {
			if err := db.Close(); err != nil {
				logger.Warn("close badger", "error", err)
			}
		})
		s.kv = db
	case config.BackendPostgres:
		p, err := postgresPool()
		if err != nil {
			return nil, err
		}
		s.kv = pgstore.NewKVStore(p)
	default:
		s.kv = memory.NewKVStore()
	}
	logger.Info("state store ready", "backend", cfg.Storage.Backend)

	switch cfg.Audit.Backend {
	case config.BackendPostgres:
		p, err := postgresPool()
		if err != nil {
			return nil, err
		}
		s.events = pgstore.NewEventStore(p)
	case config.BackendClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Audit.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.cleanups = append(s.cleanups, func() { conn.Close() })
		s.events = chstore.NewEventStore(conn)
	default:
		s.events = memory.NewEventStore()
	}
	logger.Info("audit store ready", "backend", cfg.Audit.Backend)

	return s, nil
}
