package validation

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func TestValidate(t *testing.T) {
	img := pngBytes(t)

	tests := []struct {
		name    string
		in      Input
		wantErr error
	}{
		{"valid pdf", Input{FileName: "statement.pdf", MimeType: "application/pdf", Data: pdfBytes}, nil},
		{"valid png", Input{FileName: "scan.png", MimeType: "image/png", Data: img}, nil},
		{"mime parameters ignored", Input{FileName: "scan.png", MimeType: "Image/PNG; charset=binary", Data: img}, nil},
		{"no extension", Input{FileName: "scan", MimeType: "image/png", Data: img}, nil},
		{"empty name", Input{FileName: "  ", MimeType: "image/png", Data: img}, ErrInvalidName},
		{"path separator", Input{FileName: "../etc/passwd.png", MimeType: "image/png", Data: img}, ErrInvalidName},
		{"control character", Input{FileName: "a\x00.png", MimeType: "image/png", Data: img}, ErrInvalidName},
		{"name too long", Input{FileName: strings.Repeat("a", 300) + ".png", MimeType: "image/png", Data: img}, ErrInvalidName},
		{"unsupported type", Input{FileName: "notes.txt", MimeType: "text/plain", Data: []byte("hi")}, ErrUnsupportedType},
		{"empty file", Input{FileName: "scan.png", MimeType: "image/png"}, ErrEmptyFile},
		{"declared size over standard limit", Input{FileName: "scan.pdf", MimeType: "application/pdf", Size: 11 << 20, Data: pdfBytes}, ErrFileTooLarge},
		{"premium allows more", Input{FileName: "scan.pdf", MimeType: "application/pdf", Size: 11 << 20, Data: pdfBytes, Tier: TierPremium}, nil},
		{"premium ceiling", Input{FileName: "scan.pdf", MimeType: "application/pdf", Size: 51 << 20, Data: pdfBytes, Tier: TierPremium}, ErrFileTooLarge},
		{"executable double extension", Input{FileName: "invoice.exe.pdf", MimeType: "application/pdf", Data: pdfBytes}, ErrSecurityScan},
		{"extension mismatch", Input{FileName: "scan.jpg", MimeType: "image/png", Data: img}, ErrSecurityScan},
		{"content mismatch", Input{FileName: "scan.png", MimeType: "image/png", Data: pdfBytes}, ErrSecurityScan},
		{"pdf with javascript", Input{FileName: "form.pdf", MimeType: "application/pdf", Data: append(append([]byte{}, pdfBytes...), []byte("<< /JavaScript (app.alert(1)) >>")...)}, ErrSecurityScan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Errorf("Validate() error is %T, want *Error", err)
			}
		})
	}
}

func TestValidateEmptyFileMessage(t *testing.T) {
	err := Validate(Input{FileName: "empty.pdf", MimeType: "application/pdf", Data: []byte{}})
	if err == nil || err.Error() != "file is empty" {
		t.Fatalf("Validate() error = %v, want \"file is empty\"", err)
	}
}

func TestValidateTwoByteFileIsNotTooLarge(t *testing.T) {
	err := Validate(Input{FileName: "tiny.pdf", MimeType: "application/pdf", Data: []byte("%P")})
	if errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Validate() = %v, a 2-byte file must not be too large", err)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	in := Input{FileName: "scan.jpg", MimeType: "image/png", Data: pngBytes(t)}
	first := Validate(in)
	for i := 0; i < 5; i++ {
		got := Validate(in)
		if (got == nil) != (first == nil) || got.Error() != first.Error() {
			t.Fatalf("run %d: got %v, first run gave %v", i, got, first)
		}
	}
}

func TestLimitsValidate(t *testing.T) {
	limits := Limits{StandardMaxBytes: 10, PremiumMaxBytes: 100}
	in := Input{FileName: "a.pdf", MimeType: "application/pdf", Data: pdfBytes}

	if err := limits.Validate(in); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("standard: error = %v, want ErrFileTooLarge", err)
	}
	in.Tier = TierPremium
	if err := limits.Validate(in); err != nil {
		t.Errorf("premium: error = %v, want nil", err)
	}
}

func TestNormalizeMimeType(t *testing.T) {
	tests := map[string]string{
		"image/jpg":                 "image/jpeg",
		" Application/PDF ":         "application/pdf",
		"image/png; charset=binary": "image/png",
		"":                          "",
	}
	for in, want := range tests {
		if got := NormalizeMimeType(in); got != want {
			t.Errorf("NormalizeMimeType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowedTypesAreAccepted(t *testing.T) {
	for _, typ := range AllowedTypes() {
		if _, ok := allowed[typ]; !ok {
			t.Errorf("AllowedTypes() lists %s but it has no rule", typ)
		}
	}
}
