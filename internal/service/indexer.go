package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/repository"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore holds one point per document.
type VectorStore interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.DocumentPayload) error
	Delete(ctx context.Context, pointID string) error
}

// VectorIndexer embeds the recognized text of a document and stores it in
// the vector collection under the document ID.
type VectorIndexer struct {
	embedder     Embedder
	store        VectorStore
	maxTextChars int
}

// NewVectorIndexer creates a VectorIndexer. Texts longer than maxTextChars
// runes are cut before embedding; 0 keeps the full text.
func NewVectorIndexer(embedder Embedder, store VectorStore, maxTextChars int) *VectorIndexer {
	return &VectorIndexer{embedder: embedder, store: store, maxTextChars: maxTextChars}
}

// Index skips documents without recognized text.
func (i *VectorIndexer) Index(ctx context.Context, doc *domain.Document) (bool, error) {
	text := strings.TrimSpace(doc.RecognizedText)
	if text == "" {
		return false, nil
	}
	text = truncateRunes(text, i.maxTextChars)

	start := time.Now()
	vector, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("failed to embed document: %w", err)
	}

	err = i.store.Upsert(ctx, doc.ID, vector, &repository.DocumentPayload{
		DocumentID:   doc.ID,
		OwnerID:      doc.OwnerID,
		DocumentType: doc.DocumentType,
		FileName:     doc.FileName,
		Excerpt:      truncateRunes(text, 280),
	})
	if err != nil {
		return false, err
	}

	logger.With(logger.Fields{logger.FieldSize: len(vector)}).
		WithDuration(time.Since(start)).
		Debug(ctx, "Document indexed")
	return true, nil
}

func (i *VectorIndexer) Remove(ctx context.Context, documentID string) error {
	return i.store.Delete(ctx, documentID)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
