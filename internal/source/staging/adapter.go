// Package staging reads an import directory laid out as a manifest.jsonl
// file next to a files/ directory.
package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest file name in a staging directory.
	ManifestFileName = "manifest.jsonl"
	// FilesDir is the directory holding the staged files.
	FilesDir = "files"
)

// ManifestItem is one line of manifest.jsonl.
type ManifestItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	OwnerID  string `json:"owner_id"`
	Priority string `json:"priority"`
}

// Adapter implements source.Source for a staging directory.
type Adapter struct {
	dir    string
	owner  string
	items  []source.Item
	loaded bool
}

// NewAdapter creates a staging adapter. defaultOwner applies to manifest
// lines without an owner_id.
func NewAdapter(dir, defaultOwner string) *Adapter {
	return &Adapter{dir: dir, owner: defaultOwner}
}

// GetSourceID returns the source identifier with a "staging:" prefix.
func (a *Adapter) GetSourceID() string {
	return "staging:" + filepath.Base(a.dir)
}

// GetDisplayName returns a display name for the staging source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Staging (%s)", a.dir)
}

// FetchBatch returns up to limit items starting at the index in cursor.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to load staging items: %w", err)
		}
		a.loaded = true
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil || startIndex < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if limit <= 0 {
		limit = len(a.items)
	}
	if startIndex >= len(a.items) {
		return []source.Item{}, "", nil
	}

	endIndex := min(startIndex+limit, len(a.items))
	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return a.items[startIndex:endIndex], nextCursor, nil
}

// GetTotalCount returns the number of importable items.
func (a *Adapter) GetTotalCount(ctx context.Context) (int, error) {
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return 0, err
		}
		a.loaded = true
	}
	return len(a.items), nil
}

// loadItems reads the manifest. Malformed lines and lines whose file is
// missing are skipped.
func (a *Adapter) loadItems(ctx context.Context) error {
	manifestPath := filepath.Join(a.dir, ManifestFileName)
	filesPath := filepath.Join(a.dir, FilesDir)

	file, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.items = []source.Item{}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			logger.CtxWarn(ctx, "Skipping malformed manifest line %d: %v", lineNo, err)
			continue
		}
		if item.Filename == "" || filepath.Base(item.Filename) != item.Filename {
			logger.CtxWarn(ctx, "Skipping manifest line %d: bad filename %q", lineNo, item.Filename)
			continue
		}

		localPath := filepath.Join(filesPath, item.Filename)
		if _, err := os.Stat(localPath); err != nil {
			logger.CtxWarn(ctx, "Skipping %s: %v", item.Filename, err)
			continue
		}

		id := item.ID
		if id == "" {
			id = item.Filename
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		owner := item.OwnerID
		if owner == "" {
			owner = a.owner
		}
		a.items = append(a.items, source.Item{
			SourceID:  id,
			FileName:  item.Filename,
			MimeType:  item.MimeType,
			OwnerID:   owner,
			Priority:  item.Priority,
			LocalPath: localPath,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].SourceID < a.items[j].SourceID
	})
	return nil
}
