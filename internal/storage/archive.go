package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"golang.org/x/sync/errgroup"
)

// ArchiveOldDocuments moves hot and warm documents uploaded more than
// maxAgeDays ago to the cold tier. Each document is locked on its own key;
// the sweep never blocks unrelated uploads. Returns the number moved.
func (p *TieredProvider) ArchiveOldDocuments(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays < 0 {
		return 0, fmt.Errorf("max age must not be negative, got %d", maxAgeDays)
	}
	ctx = logger.SetComponent(ctx, "archive")
	cutoff := p.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	start := time.Now()

	candidates, err := p.docs.ListForArchive(ctx, cutoff, []domain.StorageTier{domain.TierHot, domain.TierWarm})
	if err != nil {
		return 0, fmt.Errorf("failed to list archive candidates: %w", err)
	}

	var moved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ArchiveConcurrency)

	for _, doc := range candidates {
		key := doc.StorageKey
		g.Go(func() error {
			err := p.MoveToTier(gctx, key, domain.TierCold)
			switch {
			case err == nil:
				moved.Add(1)
				return nil
			case errors.Is(err, ErrNotFound):
				// deleted between listing and moving
				return nil
			default:
				return fmt.Errorf("archive %s: %w", key, err)
			}
		})
	}

	err = g.Wait()
	n := int(moved.Load())
	logger.With(logger.Fields{logger.FieldCount: n}).
		WithDuration(time.Since(start)).
		Info(ctx, "Archive sweep finished, %d of %d candidates moved", n, len(candidates))
	return n, err
}
