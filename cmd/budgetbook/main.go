package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"budgetbook/internal/amqp"
	"budgetbook/internal/auth"
	"budgetbook/internal/cashcount"
	"budgetbook/internal/cli"
	"budgetbook/internal/config"
	apphttp "budgetbook/internal/http"
	applog "budgetbook/internal/log"
	"budgetbook/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(slog.LevelInfo)
	cfg := cli.LoadAndValidateConfig(logger)
	if lvl := cfg.SlogLevel(); lvl != slog.LevelInfo {
		logger = cli.SetupLogger(lvl)
	}
	if err := cfg.RequireAuth(); err != nil {
		logger.Error("Configuration validation failed", "error", err, "error_type", applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx := context.Background()
	backend := cli.InitBackend(ctx, logger, cfg)

	var publisher services.Publisher
	amqpClient := connectAMQP(logger, cfg)
	if amqpClient != nil {
		publisher = amqpClient
	}

	cash, closeCash := openCashCount(ctx, logger, cfg)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Store:               backend,
		Projects:            services.NewProjectService(backend).WithPublisher(publisher),
		Transactions:        services.NewTransactionService(backend, publisher),
		Invitations:         services.NewInvitationService(backend, publisher, cfg.InvitationTTL),
		CashCount:           cash,
		Verifier:            auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer),
		WorkspaceTTL:        cfg.WorkspaceCacheTTL,
		InvitationRetention: cfg.InvitationRetention,
	})
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		closeCash()
	})

	logger.Info("Starting budgetbook server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", amqpClient != nil,
		"redis", cfg.RedisURL != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// connectAMQP returns nil when the broker is unreachable; writes then skip
// their notifications.
func connectAMQP(logger *slog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without change notifications", "error", err)
		return nil
	}
	logger.Info("AMQP client connected", "exchange", cfg.AMQPExchange)
	return client
}

// openCashCount picks Redis when REDIS_URL is set and process memory
// otherwise.
func openCashCount(ctx context.Context, logger *slog.Logger, cfg *config.Config) (cashcount.Store, func()) {
	if cfg.RedisURL == "" {
		logger.Info("Cash-count worksheets kept in memory")
		return cashcount.NewMemoryStore(), func() {}
	}
	rs, err := cashcount.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			logger.Warn("Failed to close Redis client", "error", err)
		}
	}
}
