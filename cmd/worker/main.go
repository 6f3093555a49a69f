package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tuition/internal/audit"
	"tuition/internal/config"
	"tuition/internal/logging"
	"tuition/internal/queue"
	"tuition/internal/store"
	"tuition/internal/store/mongodb"
	"tuition/internal/store/postgres"
)

// Worker consumes join-request events and audits the stored records.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	var records audit.Records
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect failed", zap.Error(err))
		}
		defer db.Close()
		records = postgres.New(db.Client)
	case "mongo":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Fatal("mongo connect failed", zap.Error(err))
		}
		defer func() { _ = m.Close(context.Background()) }()
		records = mongodb.New(m.DB)
	default:
		// the in-memory store lives inside the api process
		logger.Fatal("worker needs a shared store, set STORE_BACKEND to postgres or mongo")
	}

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs a shared queue, set QUEUE_BACKEND=redis")
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	if err := audit.New(records, logger.Named("audit")).Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("auditor stopped", zap.Error(err))
	}
	logger.Info("worker stopped")
}
