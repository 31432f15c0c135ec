package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetbook/internal/amqp"
	"budgetbook/internal/cli"
	"budgetbook/internal/config"
	"budgetbook/internal/sheets"
	gsheet "budgetbook/internal/sheets/google"
	sheetsmem "budgetbook/internal/sheets/memory"
	"budgetbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(slog.LevelInfo)
	cfg := cli.LoadAndValidateConfig(logger)
	if lvl := cfg.SlogLevel(); lvl != slog.LevelInfo {
		logger = cli.SetupLogger(lvl)
	}

	logger.Info("Starting budgetbook-worker")

	backend := cli.InitBackend(context.Background(), logger, cfg)
	mirror := newMirror(logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	mw := worker.NewMirrorWorker(backend, mirror)
	if n, err := mw.TrackExisting(context.Background()); err != nil {
		logger.Warn("Could not load existing projects, resync starts empty", "error", err)
	} else {
		logger.Info("Tracking existing projects", "count", n)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, mw.HandleEvent)
	})
	g.Go(func() error {
		return mw.Run(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}

// newMirror uses Google Sheets when a spreadsheet is configured and an
// in-process mirror otherwise.
func newMirror(logger *slog.Logger, cfg *config.Config) sheets.Mirror {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return sheetsmem.New()
	}
	client, err := gsheet.NewFromConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client
}
