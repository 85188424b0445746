package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/assettrack/internal/app"
	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/observability"
	"github.com/odyssey-erp/assettrack/internal/platform/cache"
	"github.com/odyssey-erp/assettrack/internal/platform/db"
	"github.com/odyssey-erp/assettrack/internal/procurement"
	"github.com/odyssey-erp/assettrack/internal/shared"
	"github.com/odyssey-erp/assettrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		logger.Error("create upload dir", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	if redisClient == nil {
		logger.Error("redis is required for receiving locks")
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	locker := shared.NewLocker(redisClient, cfg.ReceiveLockTTL)

	var (
		poEnqueuer    procurement.ImportEnqueuer
		assetEnqueuer assets.ImportEnqueuer
	)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	if cfg.ImportAsync {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		poEnqueuer = jobClient
		assetEnqueuer = jobClient
	}

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, auditLogger, metrics, logger, cfg.ReceiveTimeout)
	procurementHandler := procurement.NewHandler(logger, procurementService, locker, metrics, poEnqueuer, procurement.Uploads{
		Dir:      cfg.UploadDir,
		MaxBytes: cfg.UploadMaxBytes(),
	})

	assetRepo := assets.NewRepository(dbpool)
	assetImporter := assets.NewImporter(assetRepo, assetRepo, logger)
	assetsHandler := assets.NewHandler(logger, assetImporter, assetRepo, metrics, assetEnqueuer, cfg.UploadDir, cfg.UploadMaxBytes())

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurementHandler,
		AssetsHandler:      assetsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("async_imports", cfg.ImportAsync))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
