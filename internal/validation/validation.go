// Package validation checks uploads before anything is stored. Every check
// is pure: the same input always yields the same result.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// Error kinds. A *Error matches its kind with errors.Is.
var (
	ErrInvalidName     = errors.New("invalid file name")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrSecurityScan    = errors.New("file failed security scan")
)

// Error is a validation failure with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

const maxNameBytes = 255

// Tier names accepted in Input.Tier.
const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Limits holds the size ceiling per account tier.
type Limits struct {
	StandardMaxBytes int64
	PremiumMaxBytes  int64
}

// DefaultLimits returns 10 MB for standard and 50 MB for premium accounts.
func DefaultLimits() Limits {
	return Limits{StandardMaxBytes: 10 << 20, PremiumMaxBytes: 50 << 20}
}

func (l Limits) forTier(tier string) int64 {
	if strings.EqualFold(tier, TierPremium) {
		return l.PremiumMaxBytes
	}
	return l.StandardMaxBytes
}

// Input describes an upload. Size is the declared size; the larger of Size
// and len(Data) is checked against the ceiling.
type Input struct {
	FileName string
	MimeType string
	Size     int64
	Data     []byte
	Tier     string
}

// allowed maps each accepted MIME type to its file extensions and to the
// types byte sniffing may report for it.
var allowed = map[string]struct {
	exts     []string
	detected []string
}{
	"application/pdf": {exts: []string{".pdf"}, detected: []string{"application/pdf"}},
	"image/jpeg":      {exts: []string{".jpg", ".jpeg", ".jpe"}, detected: []string{"image/jpeg"}},
	"image/png":       {exts: []string{".png"}, detected: []string{"image/png"}},
	"image/webp":      {exts: []string{".webp"}, detected: []string{"image/webp"}},
	"image/tiff":      {exts: []string{".tif", ".tiff"}, detected: []string{"image/tiff"}},
	"image/heic":      {exts: []string{".heic", ".heif"}, detected: []string{"image/heic", "image/heic-sequence", "image/heif", "image/heif-sequence"}},
}

// AllowedTypes lists the accepted MIME types.
func AllowedTypes() []string {
	return []string{"application/pdf", "image/jpeg", "image/png", "image/webp", "image/tiff", "image/heic"}
}

var executableExts = map[string]bool{
	"exe": true, "bat": true, "cmd": true, "com": true, "scr": true, "msi": true,
	"dll": true, "js": true, "jse": true, "vbs": true, "vbe": true, "ps1": true,
	"sh": true, "jar": true, "app": true, "apk": true, "bin": true, "pif": true,
	"hta": true, "wsf": true, "cpl": true,
}

var pdfActiveMarkers = [][]byte{
	[]byte("/JavaScript"),
	[]byte("/Launch"),
	[]byte("/EmbeddedFile"),
}

// NormalizeMimeType lower-cases t and drops parameters such as charset.
func NormalizeMimeType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "image/jpg" {
		return "image/jpeg"
	}
	return t
}

// Validate runs every check against in with the default limits.
func Validate(in Input) error {
	return DefaultLimits().Validate(in)
}

// Validate runs the checks in order name, type, size, content and returns
// the first failure as a *Error.
func (l Limits) Validate(in Input) error {
	if err := checkName(in.FileName); err != nil {
		return err
	}

	mime := NormalizeMimeType(in.MimeType)
	rule, ok := allowed[mime]
	if !ok {
		return fail(ErrUnsupportedType, "file type %q is not supported", in.MimeType)
	}

	size := in.Size
	if n := int64(len(in.Data)); n > size {
		size = n
	}
	if size <= 0 {
		return fail(ErrEmptyFile, "file is empty")
	}
	if limit := l.forTier(in.Tier); limit > 0 && size > limit {
		return fail(ErrFileTooLarge, "file is %d bytes, limit is %d bytes", size, limit)
	}

	return checkContent(in.FileName, mime, rule.exts, rule.detected, in.Data)
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fail(ErrInvalidName, "file name is required")
	}
	if len(name) > maxNameBytes {
		return fail(ErrInvalidName, "file name exceeds %d bytes", maxNameBytes)
	}
	if strings.ContainsAny(name, `/\`) {
		return fail(ErrInvalidName, "file name must not contain path separators")
	}
	if name == "." || name == ".." {
		return fail(ErrInvalidName, "file name %q is reserved", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fail(ErrInvalidName, "file name contains control characters")
		}
	}
	return nil
}

func checkContent(name, mime string, exts, detected []string, data []byte) error {
	parts := strings.Split(strings.ToLower(name), ".")
	for _, p := range parts[1:] {
		if executableExts[strings.TrimSpace(p)] {
			return fail(ErrSecurityScan, "file name carries executable extension %q", p)
		}
	}

	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && !contains(exts, ext) {
		return fail(ErrSecurityScan, "extension %q does not match declared type %s", ext, mime)
	}

	if len(data) == 0 {
		return nil
	}

	sniffed := mimetype.Detect(data)
	match := false
	for _, d := range detected {
		if sniffed.Is(d) {
			match = true
			break
		}
	}
	if !match {
		return fail(ErrSecurityScan, "content looks like %s, declared %s", sniffed.String(), mime)
	}

	if mime == "application/pdf" {
		for _, marker := range pdfActiveMarkers {
			if bytes.Contains(data, marker) {
				return fail(ErrSecurityScan, "pdf contains active content %s", marker)
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
