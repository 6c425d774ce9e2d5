package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rroihans/dompetku-sub001/internal/amqp"
	"github.com/rroihans/dompetku-sub001/internal/config"
	apphttp "github.com/rroihans/dompetku-sub001/internal/http"
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

	logger.Info("Starting dompetku API server")

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

	// AMQP is optional: without it posted entries simply are not mirrored.
	var publisher ledger.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without mirror events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - ledger entries will not be mirrored")
	}

	ledgerSvc := ledger.NewService(repo, publisher)
	creditCards := services.NewCreditCardService(ledgerSvc, settings)
	installments := services.NewInstallmentService(repo)
	automation := services.NewAutomationProcessor(repo, ledgerSvc, settings)

	srv := apphttp.NewServer(":"+cfg.Port, ledgerSvc, creditCards, installments, automation)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
