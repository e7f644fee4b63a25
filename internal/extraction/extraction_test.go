package extraction

import (
	"testing"

	"github.com/timmy/docpipe/internal/domain"
)

func TestExtractFieldsPassportNumber(t *testing.T) {
	text := "REPUBLIC OF UTOPIA\nPassport Number: AB123456\nSurname: Doe\nNationality: Utopian"

	fields := ExtractFields(text, TypePassport)
	got, ok := fields["passportNumber"]
	if !ok {
		t.Fatalf("passportNumber missing, got %v", fields)
	}
	if got.Value != "AB123456" {
		t.Errorf("passportNumber = %q, want AB123456", got.Value)
	}
	if got.Confidence < 0.8 {
		t.Errorf("passportNumber confidence = %v, want >= 0.8", got.Confidence)
	}
}

func TestExtractFieldsBalance(t *testing.T) {
	text := "First National Bank\nAccount Statement\nBalance: $50,000\n"

	fields := ExtractFields(text, TypeBankStatement)
	if got := fields["balance"].Value; got != "$50,000" {
		t.Errorf("balance = %q, want $50,000 (fields %v)", got, fields)
	}
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		docType string
		want    map[string]string
	}{
		{
			name:    "unknown type yields nothing",
			text:    "Passport Number: AB123456",
			docType: TypeUnknown,
			want:    map[string]string{},
		},
		{
			name:    "missing field is absent",
			text:    "Surname: Doe",
			docType: TypePassport,
			want:    map[string]string{"surname": "Doe"},
		},
		{
			name:    "tax return",
			text:    "Form 1040\nTax Year: 2023\nTaxable Income: $84,210.00\nRefund: $1,200.00",
			docType: TypeTaxReturn,
			want:    map[string]string{"taxYear": "2023", "taxableIncome": "$84,210.00", "refund": "$1,200.00"},
		},
		{
			name:    "amount without separators",
			text:    "Balance: $50000",
			docType: TypeBankStatement,
			want:    map[string]string{"balance": "$50000"},
		},
		{
			name:    "amount with cents",
			text:    "Closing balance: $1234.56",
			docType: TypeBankStatement,
			want:    map[string]string{"balance": "$1234.56"},
		},
		{
			name:    "currency code suffix",
			text:    "Balance: 12000 USD",
			docType: TypeBankStatement,
			want:    map[string]string{"balance": "12000 USD"},
		},
		{
			name:    "salary grouped thousands",
			text:    "Gross pay: €4,250.00 per month",
			docType: TypeEmploymentLetter,
			want:    map[string]string{"salary": "€4,250.00"},
		},
		{
			name:    "first match wins",
			text:    "Balance: $10.00\nBalance: $20.00",
			docType: TypeBankStatement,
			want:    map[string]string{"balance": "$10.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFields(tt.text, tt.docType)
			for key, want := range tt.want {
				if got[key].Value != want {
					t.Errorf("%s = %q, want %q", key, got[key].Value, want)
				}
				if got[key].Key != key {
					t.Errorf("%s has key %q", key, got[key].Key)
				}
			}
			if len(tt.want) == 0 && len(got) != 0 {
				t.Errorf("got %v, want no fields", got)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		fileName string
		want     string
	}{
		{"passport", "PASSPORT\nSurname: Doe\nGiven names: Jane\nNationality: Utopian\nDate of birth: 01 Jan 1990", "scan.jpg", TypePassport},
		{"bank statement", "Big Bank\nStatement of account\nAccount number 12345678\nClosing balance $1,000.00", "doc.pdf", TypeBankStatement},
		{"file name helps", "", "bank_statement-2024.pdf", TypeBankStatement},
		{"nothing matches", "lorem ipsum dolor sit amet", "scan.png", TypeUnknown},
		{"empty", "", "", TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text, tt.fileName)
			if got.Type != tt.want {
				t.Fatalf("Classify() = %+v, want type %s", got, tt.want)
			}
			if got.Type == TypeUnknown && got.Confidence != 0 {
				t.Errorf("unknown confidence = %v, want 0", got.Confidence)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("confidence %v out of range", got.Confidence)
			}
		})
	}
}

func TestClassifyTieIsUnknown(t *testing.T) {
	// one keyword from each of two types with equal weight and keyword count
	got := Classify("passport bank", "")
	if got.Type != TypeUnknown {
		t.Errorf("Classify() = %+v, want unknown on a tie", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "Diploma\nThis degree of Bachelor of Science is conferred by Example University"
	first := Classify(text, "diploma.pdf")
	for i := 0; i < 10; i++ {
		if got := Classify(text, "diploma.pdf"); got != first {
			t.Fatalf("run %d: %+v, first %+v", i, got, first)
		}
	}
	if first.Type != TypeDiploma {
		t.Errorf("type = %s, want diploma", first.Type)
	}
}

func TestKnownTypes(t *testing.T) {
	types := KnownTypes()
	if len(types) != 7 {
		t.Fatalf("KnownTypes() has %d entries, want 7", len(types))
	}
	for _, typ := range types {
		if typ == TypeUnknown {
			t.Error("KnownTypes() must not contain unknown")
		}
	}
}

func TestNeedsManualReview(t *testing.T) {
	longText := "This text is comfortably longer than the plausibility floor."
	good := map[string]domain.ExtractedField{
		"a": {Key: "a", Value: "x", Confidence: 0.9},
	}
	lowFields := map[string]domain.ExtractedField{
		"a": {Key: "a", Confidence: 0.1},
		"b": {Key: "b", Confidence: 0.2},
		"c": {Key: "c", Confidence: 0.3},
	}

	tests := []struct {
		name string
		in   ReviewInput
		want bool
	}{
		{"confident", ReviewInput{RecognitionConfidence: 0.9, TypeConfidence: 0.8, Fields: good, Text: longText}, false},
		{"low overall", ReviewInput{RecognitionConfidence: 0.3, TypeConfidence: 0.2, Fields: good, Text: longText}, true},
		{"low recognition", ReviewInput{RecognitionConfidence: 0.5, TypeConfidence: 1, Fields: good, Text: longText}, true},
		{"too many low fields", ReviewInput{RecognitionConfidence: 1, TypeConfidence: 1, Fields: lowFields, Text: longText}, true},
		{"implausibly short text", ReviewInput{RecognitionConfidence: 0.9, TypeConfidence: 0.9, Fields: good, Text: "short"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsManualReview(tt.in); got != tt.want {
				t.Errorf("NeedsManualReview() = %v, want %v (overall %.2f)", got, tt.want, tt.in.OverallConfidence())
			}
		})
	}
}

func TestOverallConfidence(t *testing.T) {
	in := ReviewInput{RecognitionConfidence: 0.6, TypeConfidence: 0.9}
	if got := in.OverallConfidence(); got < 0.7499 || got > 0.7501 {
		t.Errorf("without fields = %v, want 0.75", got)
	}
	in.Fields = map[string]domain.ExtractedField{"a": {Confidence: 0.3}}
	if got := in.OverallConfidence(); got < 0.5999 || got > 0.6001 {
		t.Errorf("with fields = %v, want 0.6", got)
	}
}
