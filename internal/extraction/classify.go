// Package extraction classifies recognized text into a document type and
// pulls typed fields out of it. Everything here is deterministic.
package extraction

import (
	"strings"
)

// Document types known to the classifier.
const (
	TypePassport         = "passport"
	TypeBankStatement    = "bank_statement"
	TypeEmploymentLetter = "employment_letter"
	TypeBirthCertificate = "birth_certificate"
	TypeTaxReturn        = "tax_return"
	TypeVisa             = "visa"
	TypeDiploma          = "diploma"
	TypeUnknown          = "unknown"
)

// Classification is the winning document type and its score.
type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type typeRule struct {
	docType  string
	keywords []string
	weight   float64
}

// typeTable is evaluated in order; order does not affect the result since
// ties resolve to unknown.
var typeTable = []typeRule{
	{TypePassport, []string{"passport", "nationality", "date of birth", "place of birth", "surname", "given names", "date of expiry", "authority"}, 1.0},
	{TypeBankStatement, []string{"bank", "statement", "account number", "balance", "deposit", "withdrawal", "transaction", "sort code"}, 1.0},
	{TypeEmploymentLetter, []string{"employment", "employer", "position", "salary", "to whom it may concern", "employed", "start date", "human resources"}, 0.95},
	{TypeBirthCertificate, []string{"birth", "certificate", "father", "mother", "registrar", "registration district", "child"}, 0.95},
	{TypeTaxReturn, []string{"tax", "return", "taxable income", "deduction", "tax year", "refund", "form 1040", "filing status"}, 0.9},
	{TypeVisa, []string{"visa", "entries", "valid until", "consulate", "embassy", "visa type", "duration of stay"}, 0.9},
	{TypeDiploma, []string{"diploma", "degree", "university", "awarded", "bachelor", "master", "conferred"}, 0.85},
}

const tieEpsilon = 1e-9

// Classify scores text and fileName against the type table. The score of a
// type is its matched keyword fraction times its weight; the highest score
// wins. No match, or a tie for the top score, yields unknown with 0.
func Classify(text, fileName string) Classification {
	haystack := strings.ToLower(text) + "\n" + fileNameWords(fileName)

	best := Classification{Type: TypeUnknown}
	tied := false
	for _, rule := range typeTable {
		matched := 0
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(rule.keywords)) * rule.weight

		switch {
		case score > best.Confidence+tieEpsilon:
			best = Classification{Type: rule.docType, Confidence: score}
			tied = false
		case score > best.Confidence-tieEpsilon:
			tied = true
		}
	}

	if tied || best.Confidence == 0 {
		return Classification{Type: TypeUnknown}
	}
	return best
}

// fileNameWords turns "bank_statement-2024.pdf" into "bank statement 2024 pdf".
func fileNameWords(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.':
			return ' '
		}
		return r
	}, strings.ToLower(name))
}

// KnownTypes lists every type the classifier can return, unknown excluded.
func KnownTypes() []string {
	out := make([]string, len(typeTable))
	for i, rule := range typeTable {
		out[i] = rule.docType
	}
	return out
}
