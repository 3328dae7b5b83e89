package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"strikelab/internal/util"
	"strikelab/pkg/strikelab"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: strikelab-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status      Check strikelab-server health\n")
		fmt.Fprintf(os.Stderr, "  strategies  List registered strategies\n")
		fmt.Fprintf(os.Stderr, "  run         Sweep a strategy over stored bars\n")
		fmt.Fprintf(os.Stderr, "  runs        List saved runs\n")
		fmt.Fprintf(os.Stderr, "  show        Print a saved run as JSON\n")
		fmt.Fprintf(os.Stderr, "  maxpain     Max pain per day of an expiry\n")
		fmt.Fprintf(os.Stderr, "  pcr         Put-call ratio per day of an expiry\n")
		fmt.Fprintf(os.Stderr, "\nThe server address comes from STRIKELAB_URL (default http://localhost:8080).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	base := os.Getenv("STRIKELAB_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := strikelab.NewClient(base)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("strikelab-cli %s\n", version)

	case "status":
		if err = client.Health(ctx); err == nil {
			fmt.Printf("%s: ok\n", base)
		}

	case "strategies":
		err = listStrategies(ctx, client)

	case "run":
		err = runStrategy(ctx, client, os.Args[2:])

	case "runs":
		err = listRuns(ctx, client, os.Args[2:])

	case "show":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: strikelab-cli show <run-id>")
			os.Exit(1)
		}
		var run *strikelab.Run
		if run, err = client.Run(ctx, os.Args[2]); err == nil {
			err = printJSON(run)
		}

	case "maxpain":
		err = maxPain(ctx, client, os.Args[2:])

	case "pcr":
		err = putCallRatio(ctx, client, os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func listStrategies(ctx context.Context, c *strikelab.Client) error {
	list, err := c.Strategies(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIRECTION\tDESCRIPTION")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Direction, s.Description)
	}
	return tw.Flush()
}

func runStrategy(ctx context.Context, c *strikelab.Client, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		name      = fs.String("strategy", "", "registered strategy name")
		symbol    = fs.String("symbol", "", "underlying symbol")
		market    = fs.String("market", "", "market directory")
		from      = fs.String("from", "", "first bar date, YYYY-MM-DD")
		to        = fs.String("to", "", "last bar date, YYYY-MM-DD")
		direction = fs.String("direction", "", "long or short")
		mode      = fs.String("mode", "", "paired or cross")
		targets   = fs.String("targets", "", "list a,b or range lo:hi:step")
		sls       = fs.String("stop-losses", "", "list a,b or range lo:hi:step")
		rankBy    = fs.String("rank-by", "", "ranking metric")
		save      = fs.Bool("save", false, "persist the run")
	)
	_ = fs.Parse(args)
	if *name == "" || *symbol == "" {
		return fmt.Errorf("run: -strategy and -symbol are required")
	}

	req := strikelab.RunRequest{
		Symbol:    *symbol,
		Market:    *market,
		Direction: *direction,
		Mode:      *mode,
		RankBy:    *rankBy,
		Save:      *save,
	}
	var err error
	if req.From, err = util.ParseDate(*from); err != nil {
		return err
	}
	if req.To, err = util.ParseDate(*to); err != nil {
		return err
	}
	if req.Targets, err = util.ParseFloats(*targets); err != nil {
		return err
	}
	if req.StopLosses, err = util.ParseFloats(*sls); err != nil {
		return err
	}

	rep, err := c.RunStrategy(ctx, *name, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s %s: %d bars\n", rep.Strategy, rep.Symbol, rep.Direction, rep.Mode, rep.Bars)
	if rep.RunID != "" {
		fmt.Printf("saved run %s\n", rep.RunID)
	}
	printCells(rep.Ranked)
	return nil
}

func printCells(cells []strikelab.Cell) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTOP_LOSS\tTRADES\tTOTAL_PL\tWIN_RATE\tMAX_DD\tSHARPE")
	for _, cell := range cells {
		if cell.Result == nil {
			fmt.Fprintf(tw, "%g\t%g\t-\t%s\n", cell.Target, cell.StopLoss, cell.Error)
			continue
		}
		r := cell.Result
		fmt.Fprintf(tw, "%g\t%g\t%d\t%.2f\t%.2f\t%.2f\t%.3f\n",
			cell.Target, cell.StopLoss, r.NumTrades, r.TotalPL, r.WinRate, r.MaxDrawdown, r.Sharpe)
	}
	_ = tw.Flush()
}

func listRuns(ctx context.Context, c *strikelab.Client, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	name := fs.String("strategy", "", "filter by strategy")
	symbol := fs.String("symbol", "", "filter by symbol")
	limit := fs.Int("limit", 20, "maximum runs listed")
	_ = fs.Parse(args)

	runs, err := c.Runs(ctx, *name, *symbol, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTRATEGY\tSYMBOL\tDIRECTION\tMODE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.DateTime),
			r.Strategy, r.Symbol, r.Direction, r.Mode)
	}
	return tw.Flush()
}

func maxPain(ctx context.Context, c *strikelab.Client, args []string) error {
	fs := flag.NewFlagSet("maxpain", flag.ExitOnError)
	var (
		symbol = fs.String("symbol", "", "underlying symbol")
		market = fs.String("market", "", "market directory")
		expiry = fs.String("expiry", "", "expiry date YYYY-MM-DD")
		on     = fs.String("on", "", "single day YYYY-MM-DD")
		gap    = fs.Float64("gap", 0, "keep only strikes divisible by gap")
		topN   = fs.Int("top", 0, "strikes averaged per day")
		save   = fs.Bool("save", false, "persist the sweep")
	)
	_ = fs.Parse(args)

	req := strikelab.MaxPainRequest{
		Symbol: *symbol,
		Market: *market,
		Expiry: *expiry,
		Filter: strikelab.MaxPainFilter{Gap: *gap},
		TopN:   *topN,
		Save:   *save,
	}
	if *on != "" {
		d, err := util.ParseDate(*on)
		if err != nil {
			return err
		}
		req.Filter.On = &d
	}

	resp, err := c.MaxPain(ctx, req)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUNDERLYING\tAVERAGE\tTOP_STRIKES")
	for _, e := range resp.Entries {
		if e.Result == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t%s\n", e.Timestamp.Format(time.DateOnly), e.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%g\t%g\t%v\n", e.Timestamp.Format(time.DateOnly),
			e.Result.UnderlyingPrice, e.Result.AverageStrike, e.Result.TopStrikes)
	}
	return tw.Flush()
}

func putCallRatio(ctx context.Context, c *strikelab.Client, args []string) error {
	fs := flag.NewFlagSet("pcr", flag.ExitOnError)
	symbol := fs.String("symbol", "", "underlying symbol")
	expiry := fs.String("expiry", "", "expiry date YYYY-MM-DD (default: all expiries stitched)")
	otm := fs.Bool("otm", false, "out-of-the-money strikes only")
	_ = fs.Parse(args)

	resp, err := c.PutCallRatio(ctx, *symbol, *expiry, *otm)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUNDERLYING\tCALL_OI\tPUT_OI\tPCR")
	for _, p := range resp.Points {
		switch {
		case p.Error != "":
			fmt.Fprintf(tw, "%s\t%g\t-\t-\t%s\n", p.Timestamp.Format(time.DateOnly), p.Underlying, p.Error)
		case p.Ratio == nil:
			fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t-\n", p.Timestamp.Format(time.DateOnly), p.Underlying, p.CallOI, p.PutOI)
		default:
			fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%.4f\n", p.Timestamp.Format(time.DateOnly), p.Underlying, p.CallOI, p.PutOI, *p.Ratio)
		}
	}
	return tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
