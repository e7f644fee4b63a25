package extraction

import (
	"regexp"
	"strings"

	"github.com/timmy/docpipe/internal/domain"
)

type fieldRule struct {
	key        string
	pattern    *regexp.Regexp
	confidence float64
}

const (
	datePattern = `(\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/. ]\d{1,2}[-/. ]\d{2,4}|\d{1,2} [A-Za-z]{3,9} \d{4})`
	// grouped thousands or a plain run of digits; the trailing \b keeps a
	// longer number from matching as its prefix
	amountDigits  = `(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`
	amountPattern = `([$£€]\s?` + amountDigits + `\b|` + amountDigits + `\s?(?:USD|EUR|GBP)\b)`
	namePattern   = `([A-Z][A-Za-z'\-]+(?: [A-Z][A-Za-z'\-]+){0,3})`
)

func rule(key, expr string, confidence float64) fieldRule {
	return fieldRule{key: key, pattern: regexp.MustCompile(expr), confidence: confidence}
}

// fieldRules holds the extraction patterns per document type. Each pattern
// has exactly one capture group holding the value.
var fieldRules = map[string][]fieldRule{
	TypePassport: {
		rule("passportNumber", `(?i:passport\s*(?:no\.?|number|#))\s*[:\-]?\s*([A-Z0-9]{6,9})\b`, 0.9),
		rule("surname", `(?i:surname)\s*[:\-]?\s*`+namePattern, 0.75),
		rule("givenNames", `(?i:given\s+names?)\s*[:\-]?\s*`+namePattern, 0.75),
		rule("nationality", `(?i:nationality)\s*[:\-]?\s*([A-Za-z]+(?: [A-Za-z]+)?)`, 0.8),
		rule("dateOfBirth", `(?i:date\s+of\s+birth|d\.?o\.?b\.?)\s*[:\-]?\s*`+datePattern, 0.8),
		rule("expiryDate", `(?i:date\s+of\s+expiry|expiry\s+date|expires|valid\s+until)\s*[:\-]?\s*`+datePattern, 0.8),
	},
	TypeBankStatement: {
		rule("balance", `(?i:(?:closing\s+|available\s+|ending\s+)?balance)\s*[:\-]?\s*`+amountPattern, 0.85),
		rule("accountNumber", `(?i:account\s*(?:no\.?|number|#))\s*[:\-]?\s*([0-9][0-9\- ]{5,20}[0-9])`, 0.85),
		rule("accountHolder", `(?i:account\s+(?:holder|name))\s*[:\-]?\s*`+namePattern, 0.7),
		rule("statementDate", `(?i:statement\s+date|statement\s+period(?:\s+ending)?)\s*[:\-]?\s*`+datePattern, 0.75),
		rule("bankName", `([A-Z][A-Za-z&]+(?: [A-Z][A-Za-z&]+){0,3} Bank)\b`, 0.6),
	},
	TypeEmploymentLetter: {
		rule("employerName", `(?i:employer|company)\s*[:\-]?\s*([A-Z][A-Za-z0-9&.,' ]{1,60}?)\s*(?:\n|$)`, 0.7),
		rule("position", `(?i:position|job\s+title|role)\s*[:\-]?\s*([A-Za-z][A-Za-z ]{1,60}?)\s*(?:\n|$)`, 0.7),
		rule("salary", `(?i:salary|annual\s+compensation|gross\s+pay)\s*[:\-]?\s*`+amountPattern, 0.8),
		rule("startDate", `(?i:start\s+date|employed\s+since|date\s+of\s+joining)\s*[:\-]?\s*`+datePattern, 0.75),
	},
	TypeBirthCertificate: {
		rule("fullName", `(?i:name\s+of\s+child|child'?s\s+name|full\s+name)\s*[:\-]?\s*`+namePattern, 0.75),
		rule("dateOfBirth", `(?i:date\s+of\s+birth)\s*[:\-]?\s*`+datePattern, 0.8),
		rule("placeOfBirth", `(?i:place\s+of\s+birth)\s*[:\-]?\s*([A-Za-z][A-Za-z ,]{1,60}?)\s*(?:\n|$)`, 0.7),
		rule("registrationNumber", `(?i:registration\s*(?:no\.?|number))\s*[:\-]?\s*([A-Z0-9\-]{4,20})\b`, 0.8),
	},
	TypeTaxReturn: {
		rule("taxYear", `(?i:tax\s+year)\s*[:\-]?\s*((?:19|20)\d{2})\b`, 0.85),
		rule("taxableIncome", `(?i:taxable\s+income|total\s+income|adjusted\s+gross\s+income)\s*[:\-]?\s*`+amountPattern, 0.8),
		rule("taxpayerId", `(?i:ssn|tin|taxpayer\s+id(?:entification)?(?:\s+number)?)\s*[:\-]?\s*(\d{3}-?\d{2}-?\d{4}|\d{9})\b`, 0.8),
		rule("refund", `(?i:refund)\s*[:\-]?\s*`+amountPattern, 0.75),
	},
	TypeVisa: {
		rule("visaNumber", `(?i:visa\s*(?:no\.?|number|#))\s*[:\-]?\s*([A-Z0-9]{6,12})\b`, 0.85),
		rule("visaType", `(?i:visa\s+type|category|class)\s*[:\-]?\s*([A-Z0-9][A-Za-z0-9\-/]{0,15})\b`, 0.7),
		rule("validUntil", `(?i:valid\s+until|expiry\s+date|until)\s*[:\-]?\s*`+datePattern, 0.8),
		rule("entries", `(?i:entries|no\.?\s+of\s+entries)\s*[:\-]?\s*(single|double|multiple|\d+)`, 0.7),
	},
	TypeDiploma: {
		rule("institution", `([A-Z][A-Za-z]+(?: (?:of|[A-Z][A-Za-z]+)){0,5} (?:University|College|Institute))\b`, 0.7),
		rule("degree", `((?:Bachelor|Master|Doctor)\s+of\s+[A-Z][A-Za-z]+(?: [A-Z][A-Za-z]+){0,3})`, 0.8),
		rule("graduationDate", `(?i:conferred\s+on|awarded\s+on|date\s+of\s+graduation|graduated)\s*[:\-]?\s*`+datePattern, 0.75),
	},
}

// ExtractFields applies the rules of docType to text. Only the first match
// of each rule counts; a field that is not found is absent from the result.
// Unknown types yield an empty map.
func ExtractFields(text, docType string) map[string]domain.ExtractedField {
	out := make(map[string]domain.ExtractedField)
	for _, r := range fieldRules[docType] {
		m := r.pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		value := strings.TrimSpace(m[1])
		if value == "" {
			continue
		}
		out[r.key] = domain.ExtractedField{Key: r.key, Value: value, Confidence: r.confidence}
	}
	return out
}
