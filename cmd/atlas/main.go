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

	"github.com/atlas-promo/atlas-promo/internal/app"
	"github.com/atlas-promo/atlas-promo/internal/auth"
	"github.com/atlas-promo/atlas-promo/internal/ledger"
	"github.com/atlas-promo/atlas-promo/internal/obligation"
	"github.com/atlas-promo/atlas-promo/internal/observability"
	"github.com/atlas-promo/atlas-promo/internal/platform/cache"
	"github.com/atlas-promo/atlas-promo/internal/platform/db"
	"github.com/atlas-promo/atlas-promo/internal/shared"
	"github.com/atlas-promo/atlas-promo/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	authService := auth.NewService(auth.NewRepository(pool), redisClient, cfg.SessionTTL)
	authHandler := auth.NewHandler(logger, authService)

	viewCache := ledger.NewViewCache(redisClient, 10*time.Minute)
	ledgerService := ledger.NewService(
		ledger.NewRepository(pool),
		ledger.NewReconciler(logger),
		ledger.NewCascadeEngine(logger),
		viewCache,
		auditLogger,
		logger,
	)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	obligationService := obligation.NewService(obligation.NewRepository(pool))
	obligationHandler := obligation.NewHandler(logger, obligationService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthHandler:       authHandler,
		ObligationHandler: obligationHandler,
		LedgerHandler:     ledgerHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
