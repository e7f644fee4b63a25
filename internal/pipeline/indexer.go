package pipeline

import (
	"context"

	"github.com/timmy/docpipe/internal/domain"
)

// Indexer makes processed documents searchable. Index reports whether the
// document was written to an index.
type Indexer interface {
	Index(ctx context.Context, doc *domain.Document) (bool, error)
	Remove(ctx context.Context, documentID string) error
}

// NopIndexer is used when indexing is disabled.
type NopIndexer struct{}

func (NopIndexer) Index(context.Context, *domain.Document) (bool, error) { return false, nil }

func (NopIndexer) Remove(context.Context, string) error { return nil }
