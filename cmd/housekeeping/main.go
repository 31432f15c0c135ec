// Command housekeeping removes invitations that can no longer be redeemed.
// Without -interval it runs once and exits.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"budgetbook/internal/cli"
	"budgetbook/internal/services"
)

func main() {
	interval := flag.Duration("interval", 0, "repeat the cleanup at this interval (0 runs once)")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(slog.LevelInfo)
	cfg := cli.LoadAndValidateConfig(logger)

	backend := cli.InitBackend(context.Background(), logger, cfg)
	invitations := services.NewInvitationService(backend, nil, cfg.InvitationTTL)

	run := func(ctx context.Context) error {
		n, err := invitations.Cleanup(ctx, cfg.InvitationRetention)
		if err != nil {
			logger.Error("Invitation cleanup failed", "error", err)
			return err
		}
		logger.Info("Invitation cleanup finished", "deleted", n, "retention", cfg.InvitationRetention)
		return nil
	}

	if *interval <= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := run(ctx); err != nil {
			cancel()
			os.Exit(1)
		}
		return
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	logger.Info("Housekeeping started", "interval", *interval)
	_ = run(ctx)
	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			return
		case <-ticker.C:
			_ = run(ctx)
		}
	}
}
