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

	"github.com/agjmills/clientvault/internal/auth"
	"github.com/agjmills/clientvault/internal/cleanup"
	"github.com/agjmills/clientvault/internal/config"
	"github.com/agjmills/clientvault/internal/database"
	"github.com/agjmills/clientvault/internal/files"
	"github.com/agjmills/clientvault/internal/lock"
	"github.com/agjmills/clientvault/internal/logger"
	internalMiddleware "github.com/agjmills/clientvault/internal/middleware"
	"github.com/agjmills/clientvault/internal/notify"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/routes"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger.Init(cfg.Env, cfg.SentryDSN)
	defer logger.Flush(2 * time.Second)

	logger.Info("configuration loaded",
		"storage_backend", cfg.StorageBackend,
		"max_upload_gb", float64(cfg.MaxUploadBytes)/(1024*1024*1024),
		"env", cfg.Env,
	)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := storage.NewBackendFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client)
		logger.Info("using redis for cleanup coordination")
	}

	emitter := notify.NewDBEmitter(db)
	mailer := notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom, cfg.AppName, cfg.AppURL, cfg.Env != "production")
	accountant := quota.NewAccountant(db, emitter, mailer)

	outbox := cleanup.NewOutbox(db, store, cfg.CleanupMaxAttempts)
	svc := files.NewService(db, store, accountant, emitter, outbox, files.Options{
		UploadURLExpiry:   cfg.UploadURLExpiry,
		DownloadURLExpiry: cfg.DownloadURLExpiry,
		MaxUploadBytes:    cfg.MaxUploadBytes,
	})

	worker := cleanup.NewWorker(outbox, locker, cfg.CleanupInterval)
	worker.Start()

	sessionManager, err := auth.NewSessionManager(db, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(internalMiddleware.LoggingMiddleware)
	r.Use(internalMiddleware.RecoverMiddleware)
	r.Use(internalMiddleware.SecurityHeaders)

	versionInfo := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	routes.Setup(r, db, cfg, svc, accountant, store, sessionManager, versionInfo)

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting clientvault server",
			"address", addr,
			"environment", cfg.Env,
			"version", versionInfo,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	worker.Shutdown()
}
