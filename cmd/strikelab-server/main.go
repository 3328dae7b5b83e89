package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"strikelab/internal/api"
	"strikelab/internal/backtest"
	"strikelab/internal/config"
	"strikelab/internal/httpapi"
	"strikelab/internal/store"
	"strikelab/internal/strategy"
	"strikelab/internal/strategy/builtins"
	"strikelab/internal/util"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stores.
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	results, err := store.OpenSQLStore(ctx, cfg.Storage.DBDriver, cfg.Storage.DBDSN)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer results.Close()

	// Strategies.
	registry := strategy.NewRegistry()
	if err := builtins.Register(registry); err != nil {
		log.Fatalf("registering builtin strategies: %v", err)
	}
	n, err := registry.LoadDir(cfg.Backtest.StrategiesDir)
	if err != nil {
		log.Fatalf("loading strategies: %v", err)
	}
	logger.Info("strategies loaded", "dir", cfg.Backtest.StrategiesDir, "files", n, "total", len(registry.List()))

	opt := backtest.NewOptimizer(cfg.Backtest.Workers)
	bt := strategy.NewBacktester(ps, results, registry, opt, cfg.Backtest.Market)

	handler := httpapi.NewServer(cfg, httpapi.Deps{
		Contracts:  ps,
		Results:    results,
		Backtester: bt,
		Optimizer:  opt,
	}).Handler()

	srv := api.NewServer(cfg, handler)
	logger.Info("strikelab-server starting",
		"host", cfg.Server.Host, "port", cfg.Server.Port, "grpc_port", cfg.Server.GRPCPort,
		"workers", opt.Workers())

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("serving: %v", err)
	}
	logger.Info("strikelab-server stopped")
}
