package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/gateway"
	"catalogsync/internal/logger"
	"catalogsync/internal/repository"
	"catalogsync/internal/services/bigcommerce"
	"catalogsync/internal/syncer"
	"catalogsync/internal/worker"
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

	if err := cfg.ValidateUpstream(); err != nil {
		logger.Fatal("Invalid upstream configuration: %v", err)
	}

	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	channels, err := config.LoadChannels(cfg.ChannelsFile, cfg.VolumetricExemptCountries)
	if err != nil {
		logger.Fatal("Failed to load channels: %v", err)
	}

	gw := gateway.New(gateway.Options{
		HTTPClient:        &http.Client{Timeout: cfg.UpstreamTimeout},
		Logger:            logger,
		Quota:             cfg.RateLimitQuota,
		Window:            time.Duration(cfg.RateLimitWindowMs) * time.Millisecond,
		CriticalThreshold: cfg.RateLimitCritical,
		LowThreshold:      cfg.RateLimitLow,
	})
	client := bigcommerce.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamStoreHash, cfg.UpstreamAccessToken, gw, logger)

	s := syncer.New(client, syncer.Stores{
		Catalog:     repository.NewCatalogRepository(db.DB),
		Categories:  repository.NewCategoryRepository(db.DB),
		SafetyStock: repository.NewSafetyStockRepository(db.DB),
	}, syncer.Options{
		PageSize:           cfg.PageSize,
		PageConcurrency:    cfg.PageConcurrency,
		DetailConcurrency:  cfg.DetailConcurrency,
		PersistConcurrency: cfg.PersistConcurrency,
		OrphanMaxRatio:     cfg.OrphanMaxRatio,
		CacheSize:          cfg.CacheSize,
		CacheTTL:           cfg.CacheTTL,
		UpstreamBackoff:    cfg.UpstreamBackoff,
	}, logger)

	publisher := events.NewPublisher(events.NewWriter(cfg.KafkaBrokers, cfg.SyncReportsTopic), logger)
	defer publisher.Close()
	requests := events.NewReader(cfg.KafkaBrokers, cfg.SyncRequestsTopic, cfg.KafkaConsumerGroup)

	w := worker.New(s, requests, publisher, channels, cfg.SyncInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start worker
	logger.Info("Starting worker...")
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	w.Start(ctx)
	logger.Info("Worker stopped")
}
