package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/listparty/livecategories/internal/config"
	"github.com/listparty/livecategories/internal/database"
	"github.com/listparty/livecategories/internal/game"
	"github.com/listparty/livecategories/internal/migrations"
	"github.com/listparty/livecategories/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	if err := server.SeedCategories(ctx, logger, db); err != nil {
		return fmt.Errorf("seeding categories: %w", err)
	}

	store := server.NewSQLiteStore(db)
	broker := server.NewBroker()

	rules := game.Rules{
		BiddingTime: cfg.BiddingTime(),
		ListingTime: cfg.ListingTime(),
		SummaryTime: cfg.SummaryTime(),
		ShotClock:   cfg.ShotClock(),
	}
	rooms := server.NewRooms(ctx, store, broker, clockwork.NewRealClock(), logger, rules)
	defer rooms.Close()

	srv := server.New(server.Options{
		Addr:          cfg.HTTPAddr,
		CORSOrigin:    cfg.CORSOrigin,
		DefaultBestOf: cfg.DefaultBestOf,
	}, logger, db, store, rooms, broker)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
