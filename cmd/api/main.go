package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalogsync/internal/api"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	defer logger.Sync()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	channels, err := config.LoadChannels(cfg.ChannelsFile, cfg.VolumetricExemptCountries)
	if err != nil {
		logger.Fatal("Failed to load channels: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := events.NewPublisher(events.NewWriter(cfg.KafkaBrokers, cfg.SyncRequestsTopic), logger)
	defer publisher.Close()

	status := events.NewStatusStore()
	reports := events.NewReader(cfg.KafkaBrokers, cfg.SyncReportsTopic, cfg.KafkaConsumerGroup+"-api")
	defer reports.Close()
	go func() {
		if err := events.ConsumeReports(ctx, reports, status, logger); err != nil {
			logger.Error("Report consumer stopped: %v", err)
		}
	}()

	// Initialize API server
	server := api.New(cfg, logger, api.Deps{
		Products:   repository.NewCatalogRepository(db.DB),
		Categories: repository.NewCategoryRepository(db.DB),
		Sync:       publisher,
		Status:     status,
		DB:         db,
		Channels:   channels,
	})

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
		os.Exit(1)
	}
}
