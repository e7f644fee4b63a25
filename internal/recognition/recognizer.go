// Package recognition turns document bytes into text. Backends implement
// Recognizer; the helpers here clean text and score it when a backend
// reports no confidence of its own.
package recognition

import (
	"context"
	"strings"

	"github.com/timmy/docpipe/internal/domain"
)

// Result is the output of one recognition run. Empty or near-empty Text is
// a valid result, not an error.
type Result struct {
	Text       string
	Confidence float64
	Regions    []domain.Region
	Method     string
}

// Recognizer extracts text from a document.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (*Result, error)
}

// Echo treats the document bytes as UTF-8 text. It stands in for a real
// engine in tests and local runs.
type Echo struct{}

func (Echo) Recognize(_ context.Context, data []byte, _ string) (*Result, error) {
	text := Normalize(strings.ToValidUTF8(string(data), ""))
	conf := HeuristicConfidence(text)
	return &Result{
		Text:       text,
		Confidence: conf,
		Regions:    LineRegions(text, conf),
		Method:     "echo",
	}, nil
}

// LineRegions splits text into one region per non-blank line.
func LineRegions(text string, confidence float64) []domain.Region {
	var regions []domain.Region
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		regions = append(regions, domain.Region{Text: line, Confidence: confidence, Line: i + 1})
	}
	return regions
}
