package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache/redis"
	"github.com/geniusdynamics/alumate-sub022/internal/config"
	"github.com/geniusdynamics/alumate-sub022/internal/logger"
	"github.com/geniusdynamics/alumate-sub022/internal/reconciler"
	"github.com/geniusdynamics/alumate-sub022/internal/repository/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, "reconciler")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting reconciler service",
		zap.String("environment", cfg.Service.Environment))

	ctx := context.Background()

	// Initialize Postgres client
	pg, err := postgres.NewClient(ctx, cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to create Postgres client", zap.Error(err))
	}
	defer func() {
		if err := pg.Close(); err != nil {
			log.Error("Failed to close Postgres client", zap.Error(err))
		}
	}()

	testRepo := postgres.NewTestRepo(pg, log)

	// Initialize schema (create tables if not exist)
	if err := testRepo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	log.Info("Database schema initialized")

	assignmentRepo := postgres.NewAssignmentRepo(pg, log)
	conversionRepo := postgres.NewConversionRepo(pg, log)

	// Initialize Redis store
	store, err := redis.NewStore(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create Redis store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close Redis store", zap.Error(err))
		}
	}()

	// Initialize reconciler
	rec := reconciler.New(assignmentRepo, conversionRepo, store.Counters(), reconciler.Config{
		Interval:   time.Duration(cfg.Experiments.ReconcileIntervalSec) * time.Second,
		Lookback:   time.Duration(cfg.Experiments.ReconcileLookbackDays) * 24 * time.Hour,
		CounterTTL: time.Duration(cfg.Experiments.CounterTTLDays) * 24 * time.Hour,
	}, log)

	// Start health check endpoint
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := testRepo.Ping(r.Context()); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		addr := ":" + cfg.Service.HealthPort
		log.Info("Health check server starting", zap.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Health check server error", zap.Error(err))
		}
	}()

	// Start reconciler
	recCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("Reconciler starting")

	go func() {
		if err := rec.Start(recCtx); err != nil && recCtx.Err() == nil {
			log.Fatal("Reconciler error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down reconciler gracefully")
	cancel()
}
