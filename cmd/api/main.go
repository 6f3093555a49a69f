package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tuition/internal/audit"
	"tuition/internal/auth"
	"tuition/internal/catalog"
	"tuition/internal/cloudinary"
	"tuition/internal/config"
	"tuition/internal/enrollment"
	"tuition/internal/handler"
	"tuition/internal/identity"
	"tuition/internal/imageprep"
	"tuition/internal/logging"
	"tuition/internal/media"
	"tuition/internal/profile"
	"tuition/internal/queue"
	"tuition/internal/retry"
	"tuition/internal/store"
	"tuition/internal/store/memory"
	"tuition/internal/store/mongodb"
	"tuition/internal/store/postgres"
)

// backend is what every store implementation offers.
type backend interface {
	identity.Repository
	catalog.Repository
	enrollment.Repository
	enrollment.SubmissionWriter
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var cache profile.Cache
	if cfg.ProfileBackend == "memory" {
		cache = profile.NewMemoryCache(cfg.ProfileKey)
	} else {
		cache = profile.NewRedisCache(redisClient.Client, cfg.ProfileKey, cfg.RefreshTTL)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mq := queue.NewInMemory(64)
		q = mq
		// No worker can reach an in-process queue, so the api drains it itself.
		auditCtx, stopAudit := context.WithCancel(ctx)
		defer stopAudit()
		go func() {
			if err := audit.New(st, logger.Named("audit")).Run(auditCtx, mq); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("in-process auditor stopped", zap.Error(err))
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	// Cloudinary host (nil when not configured)
	var host media.Host
	if cfg.CloudinaryCloudName != "" && (cfg.CloudinaryUploadPreset != "" || cfg.CloudinaryAPISecret != "") {
		host = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryUploadPreset, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		logger.Warn("cloudinary not configured, image uploads will fail (set CLOUDINARY_CLOUD_NAME and an upload preset or API secret)")
	}

	policy := retry.Policy{Attempts: cfg.RetryAttempts, Delay: retry.Fixed(cfg.RetryDelay)}
	norm := imageprep.New(cfg.ImageMaxDim)
	norm.MaxPixels = cfg.ImageMaxPixels
	uploader := media.NewUploader(host, norm, policy, logger.Named("media"))

	var recorder enrollment.Recorder
	switch cfg.SubmitMode {
	case "atomic":
		recorder = enrollment.NewAtomicRecorder(st, policy)
	default:
		recorder = enrollment.NewSequentialRecorder(st, policy)
	}
	logger.Info("submission recorder", zap.String("mode", cfg.SubmitMode))

	issuer := auth.Issuer{Name: cfg.JWTIssuer, Key: cfg.JWTSigningKey, AccessTTL: cfg.AccessTTL, RefreshTTL: cfg.RefreshTTL}
	ids := identity.NewService(st, cache, issuer, logger.Named("identity"))
	cat := catalog.NewService(st, ids, uploader, logger.Named("catalog"))
	students := enrollment.NewService(st, st, recorder, uploader, q, logger.Named("enrollment"))
	reviewer := enrollment.NewReviewer(st, st, ids, q, logger.Named("review"))

	checks := map[string]handler.Check{"db": st.Ping}
	if cfg.ProfileBackend != "memory" || cfg.QueueBackend != "memory" {
		checks["redis"] = redisClient.Ping
	}

	r := handler.NewRouter(handler.Deps{
		Identity:          ids,
		Catalog:           cat,
		Students:          students,
		Reviewer:          reviewer,
		Issuer:            issuer,
		Checks:            checks,
		Log:               logger.Named("http"),
		RateLimitPerMin:   cfg.RateLimitPerMin,
		SubmitLimitPerMin: cfg.SubmitLimitPerMin,
		RequestLog:        true,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// openStore connects the configured document store and prepares its schema.
func openStore(ctx context.Context, cfg config.App, logger *zap.Logger) (backend, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		pg := postgres.New(db.Client)
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		return pg, func() { _ = db.Close() }, nil
	case "mongo":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		ms := mongodb.New(m.DB)
		if err := ms.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo index setup failed", zap.Error(err))
		}
		return ms, func() { _ = m.Close(context.Background()) }, nil
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	}
}
