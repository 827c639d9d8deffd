// Package main is the entry point for the Marketcore API
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/marketbots/marketcore/internal/api"
	"github.com/marketbots/marketcore/internal/api/middleware"
	"github.com/marketbots/marketcore/internal/config"
	"github.com/marketbots/marketcore/internal/repository"
	"github.com/marketbots/marketcore/internal/service"
	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
)

func main() {
	// Load configuration
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Print the configuration
	fmt.Println(cfg.String())

	// Connect to Postgres
	db, err := repository.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	// Connect Redis
	redisClient, err := repository.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Init logger
	err = zaplogger.InitLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Setup logger
	defer zaplogger.Sync()
	zaplogger.SetLogLevel(cfg.ServerLogLevel)

	// startUpMessage
	zaplogger.Info(cfg.APIName + " - " + cfg.APIVersion + " initialized")
	zaplogger.Info("Postgres initialized")
	zaplogger.Info("Redis initialized")

	ctx := context.Background()

	// Instrument repository and price store
	instrumentService := service.NewInstrumentService(db, cfg.IndexThreshold)
	store := service.NewPriceStore(instrumentService.HasToken)

	// Distributor fans applied updates out to subscribers
	distributor := service.NewDistributor(store)
	distributor.Start(ctx)

	// Greeks trigger driven by a wildcard subscription
	greeksCache := service.NewGreeksCache(redisClient)
	greeksService := service.NewGreeksService(service.GreeksConfig{
		MinInterval:   cfg.GreeksMinInterval,
		MinPriceDelta: cfg.GreeksMinPriceDelta,
		Workers:       cfg.GreeksWorkers,
		RiskFreeRate:  cfg.GreeksRiskFreeRate,
	}, store, instrumentService, service.NewBlackScholesComputer(), greeksCache)
	greeksService.Start(ctx, distributor.Subscribe(0))

	// Tick archive flushed to Postgres on an interval
	archiveService := service.NewArchiveService(service.ArchiveConfig{
		BatchSize:     cfg.ArchiveBatchSize,
		FlushInterval: cfg.ArchiveFlushInterval,
	}, db, store, instrumentService)
	archiveService.Start(ctx, distributor)

	// Bridge Postgres tick notifications to the Redis channel
	publishService := service.NewPublishService(redisClient, cfg.PostgresDsn)
	go publishService.Run(ctx)

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Setup middleware
	middleware.SetupLoggerMiddleware(e)

	// Setup routes
	api.SetupRoutes(e, cfg, api.Services{
		Store:       store,
		Distributor: distributor,
		Instruments: instrumentService,
		Greeks:      greeksCache,
	})

	// Setup and start cron jobs
	cronService := service.NewCronService(cfg, instrumentService, archiveService)
	cronService.Start()

	// Start the server
	startServer(e, cfg)

}

// startServer starts the Echo server on the specified port
func startServer(e *echo.Echo, cfg *config.Config) {
	port := cfg.ServerPort
	if port == "" {
		port = "3009"
	}
	zaplogger.Info("SERVER STARTED ON PORT " + port)
	e.Logger.Fatal(e.Start(":" + port))

}
