package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rroihans/dompetku-sub001/internal/amqp"
	"github.com/rroihans/dompetku-sub001/internal/config"
	applog "github.com/rroihans/dompetku-sub001/internal/log"
	"github.com/rroihans/dompetku-sub001/internal/sheets"
	gsheet "github.com/rroihans/dompetku-sub001/internal/sheets/google"
	mem "github.com/rroihans/dompetku-sub001/internal/sheets/memory"
	"github.com/rroihans/dompetku-sub001/internal/storage"
	"github.com/rroihans/dompetku-sub001/internal/worker"
)

const backlogBatchSize = 500

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	slog.SetDefault(logger.Logger)

	logger.Info("Starting ledger-mirror-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("Mirror worker requires an AMQP URL")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mirror to Google Sheets when configured, otherwise keep rows in
	// memory so the pipeline stays observable in development.
	var appender sheets.EntryAppender
	if cfg.SheetsMirrorEnabled() {
		client, err := gsheet.NewClient(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		appender = mem.New()
		logger.Info("Google Sheets disabled - mirroring to memory")
	}

	mirrorWorker := worker.NewMirrorWorker(repo, appender)

	// Catch up on anything posted while the worker was down.
	if mirrored, err := mirrorWorker.MirrorBacklog(ctx, 0, backlogBatchSize); err != nil {
		logger.Error("Startup backlog mirror failed", "error", err)
	} else if mirrored > 0 {
		logger.Info("Startup backlog mirrored", "count", mirrored)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeLedgerEntries(gctx, func(msg *amqp.LedgerEntryMessage) error {
			return mirrorWorker.HandleLedgerEntry(gctx, msg)
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Mirror worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Mirror worker stopped gracefully")
}
