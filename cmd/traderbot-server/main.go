// Command traderbot-server serves the backtest API over HTTP and gRPC and
// optionally runs the live trader, streaming its ticks to WebSocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"traderbot/internal/api"
	"traderbot/internal/app"
	"traderbot/internal/broker"
	"traderbot/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file (default $"+app.ConfigEnv+")")
	live := flag.Bool("live", false, "run the live trader alongside the API")
	dryRun := flag.Bool("dry-run", false, "fill live orders in the in-memory simulator")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite: %v", err)
	}
	defer db.Close()

	tf, err := broker.ParseTimeFrame(cfg.Backtest.Timeframe)
	if err != nil {
		log.Fatalf("backtest timeframe: %v", err)
	}
	writers, closeWriters := app.EquityWriters(cfg)
	defer closeWriters()

	// Requests without inline bars read the parquet cache filled by
	// "traderbot fetch".
	svc := api.NewService(store.NewParquetStore(cfg.Storage.DataDir), db, db, api.Defaults{
		Strategy:       cfg.Strategy.Name,
		Symbol:         cfg.Symbol,
		Cash:           cfg.Backtest.Cash,
		Commission:     cfg.Backtest.Commission,
		Fast:           cfg.Strategy.FastWindow,
		Slow:           cfg.Strategy.SlowWindow,
		PeriodsPerYear: broker.PeriodsPerYear(tf),
	}, writers...)
	hub := api.NewHub()
	srv := api.NewServer(cfg, svc, hub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	if *live {
		l, err := app.NewLive(cfg, app.LiveOptions{DryRun: *dryRun})
		if err != nil {
			log.Fatalf("starting live trader: %v", err)
		}
		defer l.Close()
		l.Trader.OnTick(hub.PublishTick)
		g.Go(func() error {
			err := l.Trader.Run(ctx, 0)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	slog.Info("traderbot-server started", "http", cfg.HTTPAddr(), "grpc", cfg.GRPCAddr(), "live", *live)
	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		return
	}
	slog.Info("traderbot-server stopped")
}
