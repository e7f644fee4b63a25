package extraction

import (
	"strings"

	"github.com/timmy/docpipe/internal/domain"
)

// Review thresholds.
const (
	LowConfidence       = 0.6
	MaxLowConfidence    = 2
	MinPlausibleTextLen = 30
)

// ReviewInput is the already-computed confidence data of a document.
type ReviewInput struct {
	RecognitionConfidence float64
	TypeConfidence        float64
	Fields                map[string]domain.ExtractedField
	Text                  string
}

// ReviewInputFromDocument collects the review inputs stored on a document.
func ReviewInputFromDocument(doc *domain.Document) ReviewInput {
	return ReviewInput{
		RecognitionConfidence: doc.RecognitionConfidence,
		TypeConfidence:        doc.TypeConfidence,
		Fields:                doc.ExtractedFields,
		Text:                  doc.RecognizedText,
	}
}

// OverallConfidence is the mean of recognition confidence, type confidence
// and, when fields exist, the mean field confidence.
func (in ReviewInput) OverallConfidence() float64 {
	sum := in.RecognitionConfidence + in.TypeConfidence
	n := 2.0
	if len(in.Fields) > 0 {
		var fs float64
		for _, f := range in.Fields {
			fs += f.Confidence
		}
		sum += fs / float64(len(in.Fields))
		n++
	}
	return sum / n
}

// NeedsManualReview reports whether a human should look at the document.
func NeedsManualReview(in ReviewInput) bool {
	if in.OverallConfidence() < LowConfidence {
		return true
	}
	if in.RecognitionConfidence < LowConfidence {
		return true
	}
	low := 0
	for _, f := range in.Fields {
		if f.Confidence < LowConfidence {
			low++
		}
	}
	if low > MaxLowConfidence {
		return true
	}
	return len(strings.TrimSpace(in.Text)) < MinPlausibleTextLen
}
