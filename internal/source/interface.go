// Package source reads batches of files to import from outside the API.
package source

import "context"

// Item is one file offered for import.
type Item struct {
	SourceID  string // unique ID within the source
	FileName  string
	MimeType  string // declared type, may be empty
	OwnerID   string
	Priority  string
	LocalPath string
}

// Source defines the interface for import sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}
