// Command traderbot backtests and live-trades moving-average strategies.
//
// Usage:
//
//	traderbot backtest --csv data/aapl.csv --fast 12 --slow 26
//	traderbot live --timeframe 1Day --iterations 1 --dry-run
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"traderbot/internal/api"
	"traderbot/internal/app"
	"traderbot/internal/broker"
	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/gather"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
)

const version = "0.1.0"

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: traderbot <command> [options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  backtest   Run a backtest and print its report\n")
	fmt.Fprintf(w, "  signals    Print the newest strategy signals\n")
	fmt.Fprintf(w, "  live       Start live trading against Alpaca\n")
	fmt.Fprintf(w, "  fetch      Download bars from Alpaca into the parquet cache\n")
	fmt.Fprintf(w, "  runs       List stored backtest runs\n")
	fmt.Fprintf(w, "  version    Print the version\n")
	fmt.Fprintf(w, "\nRun 'traderbot <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "traderbot %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "backtest":
		return cmdBacktest(ctx, args, out)
	case "signals":
		return cmdSignals(ctx, args, out)
	case "live":
		return cmdLive(ctx, args)
	case "fetch":
		return cmdFetch(ctx, args, out)
	case "runs":
		return cmdRuns(ctx, args, out)
	case "version":
		fmt.Fprintf(out, "traderbot %s\n", version)
		return nil
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commonFlags are shared by every command that reads bars.
type commonFlags struct {
	config string
	csv    string
	symbol string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "path to a YAML or JSON config file (default $"+app.ConfigEnv+")")
	fs.StringVar(&c.csv, "csv", "", "CSV data path; selects the csv data source")
	fs.StringVar(&c.symbol, "symbol", "", "instrument symbol")
}

func (c *commonFlags) load() (config.Config, error) {
	cfg, err := app.LoadConfig(c.config)
	if err != nil {
		return cfg, err
	}
	if c.csv != "" {
		cfg.Storage.CSVPath = c.csv
		cfg.Backtest.DataSource = config.SourceCSV
	}
	if c.symbol != "" {
		cfg.Symbol = strings.ToUpper(c.symbol)
	}
	return cfg, nil
}

func cmdBacktest(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	strat := fs.String("strategy", "", "strategy name ("+strings.Join(builtins.Names, ", ")+")")
	fast := fs.Int("fast", 0, "fast moving average window")
	slow := fs.Int("slow", 0, "slow moving average window")
	cash := fs.Float64("cash", 0, "starting cash")
	start := fs.String("start", "", "first date, YYYY-MM-DD")
	end := fs.String("end", "", "last date, YYYY-MM-DD")
	save := fs.Bool("save", false, "store the run in SQLite and export its equity curve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *strat != "" {
		cfg.Strategy.Name = *strat
	}
	if *fast > 0 {
		cfg.Strategy.FastWindow = *fast
	}
	if *slow > 0 {
		cfg.Strategy.SlowWindow = *slow
	}
	if *cash > 0 {
		cfg.Backtest.Cash = *cash
	}
	if *start != "" {
		cfg.Backtest.Start = *start
	}
	if *end != "" {
		cfg.Backtest.End = *end
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tf, err := broker.ParseTimeFrame(cfg.Backtest.Timeframe)
	if err != nil {
		return err
	}
	bars, err := app.OpenBarStore(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		runs    store.RunStore
		writers []store.EquityWriter
	)
	if *save {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		runs = db
		var closeWriters func()
		writers, closeWriters = app.EquityWriters(cfg)
		defer closeWriters()
	}

	svc := api.NewService(bars, runs, nil, api.Defaults{
		Strategy:       cfg.Strategy.Name,
		Symbol:         cfg.Symbol,
		Cash:           cfg.Backtest.Cash,
		Commission:     cfg.Backtest.Commission,
		Fast:           cfg.Strategy.FastWindow,
		Slow:           cfg.Strategy.SlowWindow,
		PeriodsPerYear: broker.PeriodsPerYear(tf),
	}, writers...)
	resp, err := svc.RunBacktest(ctx, api.BacktestRequest{
		Start: cfg.Backtest.Start,
		End:   cfg.Backtest.End,
		Curve: true,
	})
	if err != nil {
		return err
	}
	renderReport(out, resp)
	return nil
}

func cmdSignals(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("signals", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	rows := fs.Int("rows", 10, "number of newest bars to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rows < 1 {
		return fmt.Errorf("%w: --rows must be positive", domain.ErrConfiguration)
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	bs, err := app.OpenBarStore(ctx, cfg)
	if err != nil {
		return err
	}
	start, end, err := cfg.BacktestRange()
	if err != nil {
		return err
	}
	bars, err := bs.ReadBars(ctx, cfg.Symbol, start, end)
	if err != nil {
		return err
	}
	series, err := domain.NewPriceSeries(cfg.Symbol, bars)
	if err != nil {
		return err
	}
	strat, err := builtins.Build(cfg.Strategy.Name, cfg.Strategy.FastWindow, cfg.Strategy.SlowWindow)
	if err != nil {
		return err
	}
	sig, err := strat.GenerateSignal(series)
	if err != nil {
		return err
	}

	var fastMA, slowMA []float64
	sma, hasMA := strat.(*builtins.SMACross)
	if hasMA {
		if fastMA, slowMA, err = sma.Averages(series); err != nil {
			return err
		}
	}

	first := series.Len() - *rows
	if first < 0 {
		first = 0
	}
	table := make([]signalRow, 0, series.Len()-first)
	for i := first; i < series.Len(); i++ {
		r := signalRow{Time: series.At(i).Timestamp, Close: series.At(i).Close, Signal: sig[i]}
		if hasMA {
			r.Fast, r.Slow = fastMA[i], slowMA[i]
		}
		table = append(table, r)
	}
	renderSignals(out, fmt.Sprintf("%s %s signals", strat.Name(), cfg.Symbol), table, hasMA)
	return nil
}

func cmdLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	timeframe := fs.String("timeframe", "", "bar timeframe, e.g. 1Min, 1Day")
	lookback := fs.Int("lookback", 0, "number of bars for signal evaluation")
	iterations := fs.Int("iterations", 0, "stop after this many polls (0 runs until interrupted)")
	dryRun := fs.Bool("dry-run", false, "fill orders in the in-memory simulator instead of Alpaca")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	live, err := app.NewLive(cfg, app.LiveOptions{
		Timeframe: *timeframe,
		Lookback:  *lookback,
		DryRun:    *dryRun,
	})
	if err != nil {
		return err
	}
	defer live.Close()

	if err := live.Trader.Run(ctx, *iterations); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func cmdFetch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML or JSON config file")
	symbols := fs.String("symbols", "", "comma separated symbols (default: configured symbol)")
	symbolsFile := fs.String("symbols-file", "", "CSV universe file whose first column lists symbols")
	start := fs.String("start", "", "first date, YYYY-MM-DD (default: one year ago)")
	end := fs.String("end", "", "last date, YYYY-MM-DD (default: today)")
	timeframe := fs.String("timeframe", "", "bar timeframe (default: backtest timeframe)")
	full := fs.Bool("full", false, "refetch the whole range instead of resuming after cached bars")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireAlpacaCredentials(); err != nil {
		return err
	}
	if *start != "" {
		cfg.Backtest.Start = *start
	}
	if *end != "" {
		cfg.Backtest.End = *end
	}
	if *timeframe == "" {
		*timeframe = cfg.Backtest.Timeframe
	}
	tf, err := broker.ParseTimeFrame(*timeframe)
	if err != nil {
		return err
	}
	rng, err := app.FetchRange(cfg, time.Now().UTC())
	if err != nil {
		return err
	}
	list := []string{cfg.Symbol}
	switch {
	case *symbolsFile != "":
		if list, err = gather.LoadSymbols(*symbolsFile); err != nil {
			return err
		}
	case *symbols != "":
		list = strings.Split(*symbols, ",")
	}

	n, err := app.Fetch(ctx, cfg, app.BarFetcher(app.NewAlpaca(cfg), tf), list, rng, !*full)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d bars to %s\n", n, cfg.Storage.DataDir)
	return nil
}

func cmdRuns(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML or JSON config file")
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	renderRuns(out, runs)
	return nil
}
