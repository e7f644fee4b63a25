package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/docpipe/internal/app"
	"github.com/timmy/docpipe/internal/config"
	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/service"
	"github.com/timmy/docpipe/internal/source/staging"
)

func main() {
	archive := flag.Bool("archive", false, "Move documents older than -max-age-days to cold storage")
	maxAgeDays := flag.Int("max-age-days", -1, "Archive age threshold in days (default from config)")
	importDir := flag.String("import", "", "Staging directory with manifest.jsonl and files/ to import")
	owner := flag.String("owner", "", "Owner ID for imported files without one")
	priority := flag.String("priority", "normal", "Job priority for imported files: low, normal, high")
	tier := flag.String("tier", "standard", "Account tier for size limits: standard, premium")
	limit := flag.Int("limit", 0, "Maximum number of files to import (0 = all)")
	workers := flag.Int("workers", 4, "Concurrent uploads during import")
	wait := flag.Bool("wait", true, "Wait for imported documents to finish processing")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if !*archive && *importDir == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -archive or -import <dir>")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := app.NewLogger(&cfg.Log, "docpipe-docctl")
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

	if *importDir != "" {
		if err := runImport(ctx, a, *importDir, *owner, *priority, *tier, *limit, *workers, *wait); err != nil {
			appLogger.WithError(err).Error("Import failed")
			a.Close()
			os.Exit(1)
		}
	}

	if *archive {
		days := *maxAgeDays
		if days < 0 {
			days = cfg.Archive.MaxAgeDays
		}
		moved, err := a.Documents.Archive(ctx, days)
		if err != nil {
			appLogger.WithError(err).Error("Archive failed")
			a.Close()
			os.Exit(1)
		}
		appLogger.WithFields(logger.Fields{
			"moved":        moved,
			"max_age_days": days,
		}).Info("Archive completed")
	}
}

func runImport(ctx context.Context, a *app.App, dir, owner, priorityName, tier string, limit, workers int, wait bool) error {
	priority, err := domain.ParsePriority(priorityName)
	if err != nil {
		return err
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Scheduler.Stop(stopCtx); err != nil {
			logger.CtxWarn(ctx, "Scheduler did not stop cleanly: %v", err)
		}
	}()

	src := staging.NewAdapter(dir, owner)
	total, err := src.GetTotalCount(ctx)
	if err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Importing from %s: %d files staged", src.GetDisplayName(), total)

	importer := service.NewImportService(a.Documents)
	stats, err := importer.ImportFromSource(ctx, src, service.ImportOptions{
		Limit:    limit,
		Workers:  workers,
		Tier:     tier,
		Priority: priority,
	})
	if err != nil {
		return err
	}
	if !wait {
		return nil
	}

	jobs, err := importer.WaitForJobs(ctx, a.Scheduler, stats.JobIDs(), 500*time.Millisecond)
	if err != nil {
		return err
	}
	failed := 0
	for _, job := range jobs {
		if job.Status == domain.JobStatusFailed {
			failed++
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldJobID:      job.ID,
				logger.FieldDocumentID: job.DocumentID,
			}).Warnf("Processing failed: %s", job.LastError)
		}
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		"completed": len(jobs) - failed,
		"failed":    failed,
	}).Info("Processing finished")
	return nil
}
