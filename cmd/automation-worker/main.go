package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rroihans/dompetku-sub001/internal/amqp"
	"github.com/rroihans/dompetku-sub001/internal/config"
	"github.com/rroihans/dompetku-sub001/internal/ledger"
	applog "github.com/rroihans/dompetku-sub001/internal/log"
	"github.com/rroihans/dompetku-sub001/internal/services"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	slog.SetDefault(logger.Logger)

	logger.Info("Starting automation-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		logger.Error("Settings file invalid", "error", err, "path", cfg.SettingsPath)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher ledger.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without mirror events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	ledgerSvc := ledger.NewService(repo, publisher)
	processor := services.NewAutomationProcessor(repo, ledgerSvc, settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Automation processor configured",
		"interval", cfg.AutomationInterval,
		"dry_run", cfg.AutomationDryRun,
		"sqlite_db", cfg.SQLiteDBPath)

	runOnce := func() {
		now := time.Now()

		if result, err := processor.ProcessMonthlyAdminFees(ctx, now, cfg.AutomationDryRun); err != nil {
			logger.Error("Admin fee run failed", "error", err)
		} else {
			logger.Info("Admin fee run complete",
				"processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed,
				"dry_run", result.DryRun)
		}

		if result, err := processor.ProcessMonthlyInterest(ctx, now, cfg.AutomationDryRun); err != nil {
			logger.Error("Interest run failed", "error", err)
		} else {
			logger.Info("Interest run complete",
				"processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed,
				"dry_run", result.DryRun)
		}
	}

	// Run immediately on startup, then on the configured interval.
	runOnce()

	ticker := time.NewTicker(cfg.AutomationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
