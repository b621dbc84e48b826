package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/docs"
	"github.com/geniusdynamics/alumate-sub022/internal/cache/redis"
	"github.com/geniusdynamics/alumate-sub022/internal/config"
	"github.com/geniusdynamics/alumate-sub022/internal/handler"
	"github.com/geniusdynamics/alumate-sub022/internal/logger"
	"github.com/geniusdynamics/alumate-sub022/internal/queue"
	"github.com/geniusdynamics/alumate-sub022/internal/queue/sqs"
	"github.com/geniusdynamics/alumate-sub022/internal/repository/postgres"
	"github.com/geniusdynamics/alumate-sub022/internal/service"
)

// @title Alumate Experiments Service API
// @version 1.0
// @description A/B testing engine: deterministic variant assignment, conversion recording and online significance
// @host localhost:8080
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, "api")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	// Configure Swagger host dynamically
	docs.SwaggerInfo.Host = cfg.Service.Host

	ctx := context.Background()

	// Initialize Postgres client and apply the schema
	pg, err := postgres.NewClient(ctx, cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to create Postgres client", zap.Error(err))
	}
	defer func(pg *postgres.Client) {
		if err := pg.Close(); err != nil {
			log.Error("Failed to close Postgres client", zap.Error(err))
		}
	}(pg)

	testRepo := postgres.NewTestRepo(pg, log)
	if err := testRepo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	assignmentRepo := postgres.NewAssignmentRepo(pg, log)
	conversionRepo := postgres.NewConversionRepo(pg, log)

	// Initialize Redis store for counters and cached payloads
	store, err := redis.NewStore(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create Redis store", zap.Error(err))
	}
	defer func(store *redis.Store) {
		if err := store.Close(); err != nil {
			log.Error("Failed to close Redis store", zap.Error(err))
		}
	}(store)

	// Initialize the high-value conversion alert publisher
	var alerts queue.AlertPublisher = queue.NopPublisher{}
	if cfg.SQS.QueueURL != "" {
		sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
		if err != nil {
			log.Fatal("Failed to create SQS client", zap.Error(err))
		}
		alerts = sqsClient
	} else {
		log.Info("Alert queue URL not set, high-value alerts disabled")
	}

	cacheTTL := time.Duration(cfg.Experiments.CacheTTLSec) * time.Second
	counterTTL := time.Duration(cfg.Experiments.CounterTTLDays) * 24 * time.Hour

	// Initialize services
	registry := service.NewRegistry(testRepo, assignmentRepo, conversionRepo, store.Payloads(), cacheTTL, log)
	engine := service.NewEngine(testRepo, assignmentRepo, store.Counters(), counterTTL, log)
	recorder := service.NewRecorder(testRepo, conversionRepo, store.Counters(), alerts, counterTTL, cfg.Experiments.HighValueThreshold, log)
	results := service.NewResults(testRepo, assignmentRepo, conversionRepo, store.Payloads(), cacheTTL, log)

	// Initialize handler
	h := handler.NewHandler(registry, engine, recorder, results, testRepo, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	log.Info("API server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
}
