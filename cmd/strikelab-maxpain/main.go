package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"strikelab/internal/config"
	"strikelab/internal/maxpain"
	"strikelab/internal/metrics"
	"strikelab/internal/options"
	"strikelab/internal/store"
	"strikelab/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var (
		symbol = flag.String("symbol", "", "underlying symbol, e.g. NIFTY")
		market = flag.String("market", cfg.MaxPain.Market, "market directory")
		expiry = flag.String("expiry", "", "expiry date YYYY-MM-DD (default: list expiries, or with -pcr the series over all of them)")
		from   = flag.String("from", "", "first day, YYYY-MM-DD (default: first of expiry month)")
		to     = flag.String("to", "", "last day, YYYY-MM-DD")
		on     = flag.String("on", "", "single day, YYYY-MM-DD (overrides -from/-to)")
		start  = flag.Float64("start-strike", cfg.MaxPain.StartStrike, "lowest strike considered")
		end    = flag.Float64("end-strike", cfg.MaxPain.EndStrike, "highest strike considered")
		gap    = flag.Float64("gap", cfg.MaxPain.Gap, "keep only strikes divisible by gap")
		topN   = flag.Int("top", cfg.MaxPain.TopN, "strikes averaged per timestamp")
		pcr    = flag.Bool("pcr", false, "also print the put-call ratio")
		otm    = flag.Bool("otm", false, "put-call ratio over out-of-the-money strikes only")
		save   = flag.Bool("save", false, "persist results to the result store")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: strikelab-maxpain -symbol SYM [-expiry YYYY-MM-DD] [options]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	if *expiry == "" {
		expiries, err := ps.ListExpiries(ctx, *symbol, *market)
		if err != nil {
			log.Fatalf("listing expiries: %v", err)
		}
		if !*pcr {
			for _, e := range expiries {
				fmt.Println(e.Format(time.DateOnly))
			}
			return
		}
		chains := make([]options.ExpiryChain, 0, len(expiries))
		for _, e := range expiries {
			rows, err := ps.ReadContracts(ctx, *symbol, *market, e)
			if err != nil {
				log.Fatalf("reading contracts: %v", err)
			}
			chains = append(chains, options.ExpiryChain{Expiry: e, Contracts: rows})
		}
		since, err := util.ParseDate(*from)
		if err != nil {
			log.Fatalf("-from: %v", err)
		}
		printPCR(options.ContinuousPutCallRatio(chains, options.PCROptions{OTM: *otm, Cap: cfg.Options.PCRCap, From: since}))
		return
	}

	exp, err := util.ParseExpiry(*expiry)
	if err != nil {
		log.Fatalf("-expiry: %v", err)
	}
	rows, err := ps.ReadContracts(ctx, *symbol, *market, exp)
	if err != nil {
		log.Fatalf("reading contracts: %v", err)
	}

	f := maxpain.Filter{StartStrike: *start, EndStrike: *end, Gap: *gap}
	if f.From, err = util.ParseDate(*from); err != nil {
		log.Fatalf("-from: %v", err)
	}
	if f.To, err = util.ParseDate(*to); err != nil {
		log.Fatalf("-to: %v", err)
	}
	if f.On, err = util.ParseDate(*on); err != nil {
		log.Fatalf("-on: %v", err)
	}
	f = f.WithDefaults(exp)

	calc := maxpain.NewCalculator(maxpain.WithTopN(*topN))
	entries, sweepErr := calc.Sweep(ctx, rows, f)

	failed := 0
	fmt.Printf("%-10s  %10s  %10s  %s\n", "date", "underlying", "max_pain", "average")
	for _, e := range entries {
		if e.Err != nil {
			failed++
			fmt.Printf("%-10s  %s\n", e.Timestamp.Format(time.DateOnly), e.Error)
			continue
		}
		strike, _ := e.Result.MaxPainStrike()
		fmt.Printf("%-10s  %10g  %10g  %g\n", e.Timestamp.Format(time.DateOnly),
			e.Result.UnderlyingPrice, strike, e.Result.AverageStrike)
	}
	metrics.ObserveMaxPain(len(entries)-failed, failed)
	if sweepErr != nil {
		logger.Warn("sweep interrupted", "error", sweepErr, "entries", len(entries))
	}

	if *pcr {
		fmt.Println()
		printPCR(options.PutCallRatio(rows, options.PCROptions{OTM: *otm, Cap: cfg.Options.PCRCap, From: f.From}))
	}

	if *save && sweepErr == nil {
		results, err := store.OpenSQLStore(ctx, cfg.Storage.DBDriver, cfg.Storage.DBDSN)
		if err != nil {
			log.Fatalf("opening result store: %v", err)
		}
		defer results.Close()
		if err := results.SaveMaxPain(ctx, *symbol, exp, entries); err != nil {
			log.Fatalf("saving: %v", err)
		}
		logger.Info("max pain saved", "symbol", *symbol, "expiry", exp.Format(time.DateOnly), "entries", len(entries))
	}
}

func printPCR(points []options.PCRPoint) {
	fmt.Printf("%-10s  %10s  %10s  %s\n", "date", "call_oi", "put_oi", "pcr")
	for _, p := range points {
		switch {
		case p.Err != nil:
			fmt.Printf("%-10s  %s\n", p.Timestamp.Format(time.DateOnly), p.Error)
		case p.Ratio == nil:
			fmt.Printf("%-10s  %10g  %10g  -\n", p.Timestamp.Format(time.DateOnly), p.CallOI, p.PutOI)
		default:
			fmt.Printf("%-10s  %10g  %10g  %g\n", p.Timestamp.Format(time.DateOnly), p.CallOI, p.PutOI, *p.Ratio)
		}
	}
}
