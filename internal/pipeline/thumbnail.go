package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/storage"
	"github.com/timmy/docpipe/internal/validation"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// thumbnail renders a JPEG preview for raster images and records the page
// count of PDFs. HEIC has no decoder and is left without a preview.
func (s *stages) thumbnail(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := s.load(ctx, job)
	if err != nil {
		return err
	}

	mime := validation.NormalizeMimeType(doc.MimeType)
	switch mime {
	case "application/pdf":
		data, err := s.download(ctx, doc)
		if err != nil {
			return err
		}
		pages, err := PageCount(data)
		if err != nil {
			return scheduler.Permanentf("failed to read pdf: %w", err)
		}
		return s.update(ctx, doc, func(d *domain.Document) error {
			d.PageCount = pages
			return nil
		})

	case "image/jpeg", "image/png", "image/webp", "image/tiff":
		data, err := s.download(ctx, doc)
		if err != nil {
			return err
		}
		thumb, err := Thumbnail(data, s.deps.ThumbnailSize)
		if err != nil {
			return scheduler.Permanentf("failed to render thumbnail: %w", err)
		}
		key := storage.ThumbnailKey(doc.ID)
		if err := s.deps.Provider.SaveArtifact(ctx, key, thumb, "image/jpeg"); err != nil {
			return err
		}
		return s.update(ctx, doc, func(d *domain.Document) error {
			d.ThumbnailKey = key
			d.PageCount = 1
			return nil
		})

	default:
		logger.CtxDebug(ctx, "No thumbnail for %s", mime)
		return nil
	}
}

// PageCount returns the number of pages of a PDF.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

// Thumbnail decodes an image and scales it so its longest edge is at most
// maxEdge pixels. Smaller images keep their size. The result is JPEG.
func Thumbnail(data []byte, maxEdge int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxEdge || h > maxEdge {
		if w >= h {
			h = max(1, h*maxEdge/w)
			w = maxEdge
		} else {
			w = max(1, w*maxEdge/h)
			h = maxEdge
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
