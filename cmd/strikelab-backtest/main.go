package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"strikelab/internal/backtest"
	"strikelab/internal/config"
	"strikelab/internal/domain"
	"strikelab/internal/store"
	"strikelab/internal/strategy"
	"strikelab/internal/strategy/builtins"
	"strikelab/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var (
		name      = flag.String("strategy", "", "registered strategy name")
		file      = flag.String("file", "", "strategy definition YAML (overrides -strategy)")
		symbol    = flag.String("symbol", "", "underlying symbol")
		market    = flag.String("market", cfg.Backtest.Market, "market directory")
		from      = flag.String("from", "", "first bar date, YYYY-MM-DD")
		to        = flag.String("to", "", "last bar date, YYYY-MM-DD")
		direction = flag.String("direction", "", "long or short (default: strategy's)")
		mode      = flag.String("mode", cfg.Backtest.Sweep, "sweep mode: paired or cross")
		targets   = flag.String("targets", "", "target fractions, list a,b or range lo:hi:step")
		sls       = flag.String("stop-losses", "", "stop-loss fractions, list a,b or range lo:hi:step")
		rankBy    = flag.String("rank-by", cfg.Backtest.RankBy, "ranking metric")
		workers   = flag.Int("workers", cfg.Backtest.Workers, "parallel workers (0 = NumCPU)")
		save      = flag.Bool("save", false, "persist the run to the result store")
		out       = flag.String("out", "", "directory for cells.csv and best trades.csv")
		list      = flag.Bool("list", false, "list registered strategies and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: strikelab-backtest -symbol SYM (-strategy NAME | -file PATH) [options]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry := strategy.NewRegistry()
	if err := builtins.Register(registry); err != nil {
		log.Fatalf("registering builtin strategies: %v", err)
	}
	if _, err := registry.LoadDir(cfg.Backtest.StrategiesDir); err != nil {
		log.Fatalf("loading strategies: %v", err)
	}
	if *list {
		for _, n := range registry.List() {
			d, _ := registry.Get(n)
			fmt.Printf("%-20s %-6s %s\n", n, d.Direction, d.Description)
		}
		return
	}

	req := strategy.Request{
		Strategy:  *name,
		Symbol:    *symbol,
		Market:    *market,
		Direction: domain.Direction(*direction),
		Mode:      backtest.Mode(*mode),
		RankBy:    backtest.Metric(*rankBy),
		Save:      *save,
	}
	if *file != "" {
		def, err := strategy.LoadFile(*file)
		if err != nil {
			log.Fatalf("%v", err)
		}
		req.Definition = def
	}
	if req.From, err = util.ParseDate(*from); err != nil {
		log.Fatalf("-from: %v", err)
	}
	if req.To, err = util.ParseDate(*to); err != nil {
		log.Fatalf("-to: %v", err)
	}
	req.Targets = cfg.Backtest.Targets
	if *targets != "" {
		if req.Targets, err = util.ParseFloats(*targets); err != nil {
			log.Fatalf("-targets: %v", err)
		}
	}
	req.StopLosses = cfg.Backtest.StopLosses
	if *sls != "" {
		if req.StopLosses, err = util.ParseFloats(*sls); err != nil {
			log.Fatalf("-stop-losses: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var results store.ResultStore
	if *save {
		sqlStore, err := store.OpenSQLStore(ctx, cfg.Storage.DBDriver, cfg.Storage.DBDSN)
		if err != nil {
			log.Fatalf("opening result store: %v", err)
		}
		defer sqlStore.Close()
		results = sqlStore
	}

	bt := strategy.NewBacktester(store.NewParquetStore(cfg.Storage.DataDir), results, registry,
		backtest.NewOptimizer(*workers), cfg.Backtest.Market)

	rep, err := bt.Run(ctx, req)
	if rep == nil {
		log.Fatalf("backtest: %v", err)
	}
	if err != nil {
		// Cancelled mid-sweep: report what finished.
		logger.Warn("sweep interrupted", "error", err, "cells", len(rep.Cells))
	}

	fmt.Printf("%s %s %s %s: %d bars, %d cells\n", rep.Strategy, rep.Symbol, rep.Direction, rep.Mode, rep.Bars, len(rep.Cells))
	if rep.RunID != "" {
		fmt.Printf("saved run %s\n", rep.RunID)
	}
	if err := backtest.WriteCellsCSV(os.Stdout, rep.Cells); err != nil {
		log.Fatalf("writing cells: %v", err)
	}

	best, ok := rep.Best()
	if ok {
		fmt.Printf("\nbest (%s): target=%g stop_loss=%g total_pl=%g trades=%d win_rate=%g\n",
			req.RankBy, best.Target, best.StopLoss, best.Result.TotalPL, best.Result.NumTrades, best.Result.WinRate)
	}
	if *out != "" {
		if err := writeOutputs(*out, rep, best, ok); err != nil {
			log.Fatalf("writing %s: %v", *out, err)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func writeOutputs(dir string, rep *strategy.Report, best backtest.Cell, haveBest bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "cells.csv"))
	if err != nil {
		return err
	}
	if err := backtest.WriteCellsCSV(f, rep.Cells); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !haveBest {
		return nil
	}
	f, err = os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return err
	}
	if err := backtest.WriteTradesCSV(f, best.Result.Trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
