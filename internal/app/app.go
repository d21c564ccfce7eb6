// Package app wires configuration into the stores, brokers and trading loop
// shared by the traderbot binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"traderbot/internal/broker"
	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/engine"
	"traderbot/internal/gather"
	"traderbot/internal/metrics"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
	"traderbot/internal/util"
)

// ConfigEnv names the variable holding the default config file path.
const ConfigEnv = "TRADERBOT_CONFIG"

// DefaultLookbackDays is the history fetched for alpaca backtests without a
// start date.
const DefaultLookbackDays = 365

// LoadConfig loads path, falling back to $TRADERBOT_CONFIG and then to
// defaults plus environment. It validates the result and installs the
// configured logger as the slog default.
func LoadConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	cfg, err := config.LoadOrEnv(path)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

// NewAlpaca builds the Alpaca broker and market data client from cfg.
func NewAlpaca(cfg config.Config) *broker.AlpacaBroker {
	return broker.NewAlpacaBroker(broker.AlpacaOptions{
		APIKey:            cfg.Alpaca.APIKey,
		APISecret:         cfg.Alpaca.APISecret,
		BaseURL:           cfg.TradingURL(),
		DataURL:           cfg.Alpaca.DataURL,
		Feed:              cfg.Alpaca.Feed,
		RequestsPerMinute: cfg.Alpaca.RateLimitPerMin,
	})
}

// BarFetcher adapts the Alpaca market data client to gather.BarFetcher at a
// fixed timeframe.
func BarFetcher(a *broker.AlpacaBroker, tf marketdata.TimeFrame) gather.BarFetcher {
	return gather.BarFetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
		return a.FetchBars(ctx, symbol, tf, start, end)
	})
}

// Fetch downloads bars for symbols over rng into the parquet cache and
// returns the number of bars written. Incremental fetches resume after the
// newest cached bar.
func Fetch(ctx context.Context, cfg config.Config, f gather.BarFetcher, symbols []string, rng gather.DateRange, incremental bool) (int64, error) {
	g := gather.NewBarGatherer(f, store.NewParquetStore(cfg.Storage.DataDir), symbols, rng, 4)
	g.Incremental = incremental
	slog.Info("gathering bars", "gatherer", g.Name(), "symbols", symbols,
		"start", rng.Start.Format(time.DateOnly), "end", rng.End.Format(time.DateOnly))
	if err := g.Run(ctx); err != nil {
		return g.Written(), err
	}
	return g.Written(), nil
}

// FetchRange turns the configured backtest dates into a bounded range,
// defaulting to the DefaultLookbackDays before now.
func FetchRange(cfg config.Config, now time.Time) (gather.DateRange, error) {
	start, end, err := cfg.BacktestRange()
	if err != nil {
		return gather.DateRange{}, err
	}
	if end.IsZero() || end.After(now) {
		end = now
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -DefaultLookbackDays)
	}
	rng := gather.DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return rng, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return rng, nil
}

// OpenBarStore returns the bar store named by cfg.Backtest.DataSource. The
// alpaca source fills the parquet cache for cfg.Symbol first.
func OpenBarStore(ctx context.Context, cfg config.Config) (store.BarStore, error) {
	switch cfg.Backtest.DataSource {
	case config.SourceCSV:
		if cfg.Storage.CSVPath == "" {
			return nil, fmt.Errorf("%w: csv data source needs storage.csv_path or --csv", domain.ErrConfiguration)
		}
		if _, err := os.Stat(cfg.Storage.CSVPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: csv path %s does not exist", domain.ErrConfiguration, cfg.Storage.CSVPath)
		}
		return store.NewCSVStore(cfg.Storage.CSVPath, cfg.Storage.CSVEncoding), nil
	case config.SourceParquet:
		return store.NewParquetStore(cfg.Storage.DataDir), nil
	case config.SourceAlpaca:
		if err := cfg.RequireAlpacaCredentials(); err != nil {
			return nil, err
		}
		tf, err := broker.ParseTimeFrame(cfg.Backtest.Timeframe)
		if err != nil {
			return nil, err
		}
		rng, err := FetchRange(cfg, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		if _, err := Fetch(ctx, cfg, BarFetcher(NewAlpaca(cfg), tf), []string{cfg.Symbol}, rng, true); err != nil {
			return nil, err
		}
		return store.NewParquetStore(cfg.Storage.DataDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown data source %q", domain.ErrConfiguration, cfg.Backtest.DataSource)
	}
}

// EquityWriters returns the exporters for backtest equity curves: the
// parquet store always, InfluxDB when configured. close releases them.
func EquityWriters(cfg config.Config) (writers []store.EquityWriter, closeFn func()) {
	writers = []store.EquityWriter{store.NewParquetStore(cfg.Storage.DataDir)}
	closeFn = func() {}
	if cfg.Influx.URL != "" {
		iw := store.NewInfluxEquityWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		writers = append(writers, iw)
		closeFn = iw.Close
	}
	return writers, closeFn
}

// LiveOptions override the trading section of the config for one run.
type LiveOptions struct {
	Timeframe string
	Lookback  int
	DryRun    bool
	// Bars replaces Alpaca market data when set.
	Bars engine.BarSource
}

// Live is a configured trading loop and the resources it holds.
type Live struct {
	Trader *engine.Trader
	Engine *engine.Engine
	db     *store.SQLiteStore
}

// Close releases the order and signal database.
func (l *Live) Close() error { return l.db.Close() }

// NewLive builds the live trader for cfg.Symbol: Alpaca market data feeding
// the configured strategy, orders routed to Alpaca or, on dry runs, to the
// simulator broker, with orders and signals persisted to SQLite.
func NewLive(cfg config.Config, opts LiveOptions) (*Live, error) {
	if opts.Timeframe == "" {
		opts.Timeframe = cfg.Trading.Timeframe
	}
	if opts.Lookback <= 0 {
		opts.Lookback = cfg.Trading.Lookback
	}
	opts.DryRun = opts.DryRun || cfg.Trading.DryRun

	tf, err := broker.ParseTimeFrame(opts.Timeframe)
	if err != nil {
		return nil, err
	}
	strat, err := builtins.Build(cfg.Strategy.Name, cfg.Strategy.FastWindow, cfg.Strategy.SlowWindow)
	if err != nil {
		return nil, err
	}

	bars := opts.Bars
	var b broker.Broker
	if bars == nil || !opts.DryRun {
		if err := cfg.RequireAlpacaCredentials(); err != nil {
			return nil, err
		}
		alpacaBroker := NewAlpaca(cfg)
		b = alpacaBroker
		if bars == nil {
			bars = engine.BarSourceFunc(func(ctx context.Context, symbol string, n int) ([]domain.Bar, error) {
				return alpacaBroker.LatestBars(ctx, symbol, tf, n)
			})
		}
	}
	if opts.DryRun {
		b = broker.NewSimulatorBroker(cfg.Backtest.Cash)
	}

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	e := engine.NewEngine(b, db, engine.NewRiskManager(cfg.Trading.MaxPositionPct, cfg.Trading.MaxDailyLossPct))

	tcfg := engine.TraderConfig{
		Symbol:       cfg.Symbol,
		Lookback:     opts.Lookback,
		PollInterval: cfg.PollDuration(),
	}
	if cfg.Trading.MarketHoursOnly {
		tcfg.MarketOpen = util.NewTradingCalendar(domain.MarketUS).IsMarketOpen
	}
	trader, err := engine.NewTrader(e, strat, bars, db, tcfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	trader.OnTick(metrics.ObserveTick)

	slog.Info("live trader ready",
		"symbol", cfg.Symbol, "strategy", strat.Name(), "broker", e.BrokerName(),
		"timeframe", tf.String(), "lookback", opts.Lookback, "dry_run", opts.DryRun)
	return &Live{Trader: trader, Engine: e, db: db}, nil
}
