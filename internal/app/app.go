// Package app wires configuration into the running document pipeline. Both
// the API server and the docctl tool start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/docpipe/internal/api/handler"
	"github.com/timmy/docpipe/internal/config"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/pipeline"
	"github.com/timmy/docpipe/internal/recognition"
	"github.com/timmy/docpipe/internal/repository"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/service"
	"github.com/timmy/docpipe/internal/storage"
	"github.com/timmy/docpipe/internal/validation"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config    *config.Config
	Provider  *storage.TieredProvider
	Scheduler *scheduler.Scheduler
	Documents *service.DocumentService
	Limits    validation.Limits
	// Checks are the dependency probes served on /health.
	Checks map[string]handler.HealthCheck

	closers []func() error
}

// NewLogger builds the process logger. Environment settings (LOG_FILE,
// APP_ENV...) apply first; the config file's level and format override them.
func NewLogger(cfg *config.LogConfig, serviceName string) *logger.Logger {
	envCfg := logger.LoadFromEnv()
	envCfg.ServiceName = serviceName
	if cfg != nil && cfg.Level != "" {
		envCfg.Level = cfg.Level
	}
	if cfg != nil && cfg.Format != "" {
		envCfg.Format = cfg.Format
	}
	return logger.NewFromEnv(envCfg)
}

// New builds every component. The scheduler is created but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Checks: make(map[string]handler.HealthCheck)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
		a.Checks["database"] = sqlDB.PingContext
	}
	docStore := repository.NewDocumentRepository(db)
	jobStore := repository.NewJobRepository(db)

	blobs, err := storage.NewObjectStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	secret := cfg.Signing.Secret
	if secret == "" {
		return nil, errors.New("signing.secret is required (or SIGNING_SECRET)")
	}
	provider, err := storage.NewTieredProvider(blobs, docStore, storage.ProviderConfig{
		Secret:             secret,
		BaseURL:            cfg.Signing.BaseURL,
		DefaultTTL:         cfg.Signing.DefaultTTL,
		MaxTTL:             cfg.Signing.MaxTTL,
		ArchiveConcurrency: cfg.Archive.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	a.Provider = provider

	a.Limits = validation.Limits{
		StandardMaxBytes: cfg.Validation.StandardMaxBytes,
		PremiumMaxBytes:  cfg.Validation.PremiumMaxBytes,
	}
	if a.Limits.StandardMaxBytes <= 0 || a.Limits.PremiumMaxBytes <= 0 {
		a.Limits = validation.DefaultLimits()
	}

	indexer, err := a.newIndexer(ctx)
	if err != nil {
		return nil, err
	}

	handlers := pipeline.Handlers(pipeline.Dependencies{
		Provider:   provider,
		Recognizer: newRecognizer(ctx, &cfg.Recognition),
		Indexer:    indexer,
		Limits:     a.Limits,
	})

	schedCfg := scheduler.DefaultConfig()
	if cfg.Scheduler.Workers > 0 {
		schedCfg.Workers = cfg.Scheduler.Workers
	}
	if cfg.Scheduler.MaxRetries >= 0 {
		schedCfg.MaxRetries = cfg.Scheduler.MaxRetries
	}
	if cfg.Scheduler.StageTimeout > 0 {
		schedCfg.StageTimeout = cfg.Scheduler.StageTimeout
	}
	if cfg.Scheduler.BackoffBase > 0 {
		schedCfg.BackoffBase = cfg.Scheduler.BackoffBase
	}
	if cfg.Scheduler.BackoffMax > 0 {
		schedCfg.BackoffMax = cfg.Scheduler.BackoffMax
	}
	a.Scheduler = scheduler.New(jobStore, provider, handlers, schedCfg, scheduler.LogSink{})
	a.Documents = service.NewDocumentService(provider, a.Scheduler, indexer, a.Limits)

	ok = true
	return a, nil
}

func newRecognizer(ctx context.Context, cfg *config.RecognitionConfig) recognition.Recognizer {
	switch strings.ToLower(cfg.Provider) {
	case "echo", "text":
		return recognition.Echo{}
	}
	if cfg.APIKey == "" {
		logger.CtxWarn(ctx, "No recognition api_key configured, falling back to plain text recognition")
		return recognition.Echo{}
	}
	vlm := service.NewVLMRecognizer(&service.VLMConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
	logger.CtxInfo(ctx, "Recognition uses model %s", vlm.GetModel())
	return vlm
}

func (a *App) newIndexer(ctx context.Context) (pipeline.Indexer, error) {
	cfg := a.Config.Indexing
	if !cfg.Enabled {
		return pipeline.NopIndexer{}, nil
	}

	qdrant, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, qdrant.Close)
	a.Checks["qdrant"] = qdrant.Ping

	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := qdrant.EnsureCollection(ensureCtx); err != nil {
		return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
	}

	embedder := service.NewEmbeddingService(&service.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	logger.CtxInfo(ctx, "Indexing enabled with %s into collection %s", embedder.GetModel(), cfg.Qdrant.Collection)
	return service.NewVectorIndexer(embedder, qdrant, cfg.MaxTextChars), nil
}

// Close releases database and index connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource: %v", err)
		}
	}
	a.closers = nil
}
