package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/docpipe/internal/api"
	"github.com/timmy/docpipe/internal/api/middleware"
	"github.com/timmy/docpipe/internal/app"
	"github.com/timmy/docpipe/internal/config"
	"github.com/timmy/docpipe/internal/logger"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := app.NewLogger(&cfg.Log, "docpipe-api")
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = appLogger.WithContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	if err := a.Scheduler.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start scheduler")
	}

	go runArchiveSweeps(ctx, a, cfg.Archive.Interval, cfg.Archive.MaxAgeDays)

	router := api.SetupRouter(a.Documents, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		MaxUploadBytes: a.Limits.PremiumMaxBytes,
		ArchiveMaxAge:  cfg.Archive.MaxAgeDays,
		HealthChecks:   a.Checks,
	}, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := a.Scheduler.Stop(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Scheduler did not stop cleanly")
	}

	appLogger.Info("Server exited")
}

// runArchiveSweeps moves old documents to cold storage every interval until
// ctx is cancelled. A non-positive interval disables the sweep.
func runArchiveSweeps(ctx context.Context, a *app.App, interval time.Duration, maxAgeDays int) {
	if interval <= 0 {
		return
	}
	ctx = logger.SetComponent(ctx, "archive")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Documents.Archive(ctx, maxAgeDays); err != nil {
				logger.CtxError(ctx, "Archive sweep failed: %v", err)
			}
		}
	}
}
