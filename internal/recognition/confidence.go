package recognition

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b(19|20)\d{2}[-/.]\d{1,2}[-/.]\d{1,2}\b|\b\d{1,2}[-/.]\d{1,2}[-/.](19|20)?\d{2}\b|\b\d{1,2} (jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]* (19|20)\d{2}\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy|chf)\b|[$£€¥]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})+(\.\d{2})?\b|\b\d+\.\d{2}\b`)
	reIDLike = regexp.MustCompile(`\b[a-z]{1,3}\d{5,9}\b`)
)

// HeuristicConfidence scores text by the artefacts real documents carry:
// dates, currency, amounts, identifier-like tokens and sheer length. The
// score starts at 0.2 and is capped at 1. Empty text scores 0.
func HeuristicConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0.2
	if reDate.MatchString(lower) {
		score += 0.2
	}
	if reCurr.MatchString(lower) {
		score += 0.15
	}
	if reAmount.MatchString(lower) {
		score += 0.15
	}
	if reIDLike.MatchString(lower) {
		score += 0.1
	}
	if len(text) > 120 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
