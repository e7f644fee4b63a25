package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/docpipe/internal/domain"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/service"
	"github.com/timmy/docpipe/internal/storage"
)

// DocumentHandler handles document, job and download endpoints.
type DocumentHandler struct {
	docs     *service.DocumentService
	maxBytes int64
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - docs: document service instance.
//   - maxBytes: largest upload read from a request, the premium ceiling.
//
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(docs *service.DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxBytes: maxBytes}
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	DocumentID string             `json:"document_id"`
	StorageKey string             `json:"storage_key"`
	Status     string             `json:"status"`
	Job        *scheduler.JobView `json:"job,omitempty"`
}

// Upload handles POST /api/v1/documents.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	priority, err := domain.ParsePriority(c.PostForm("priority"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	process := true
	if v := c.PostForm("process"); v != "" {
		if process, err = strconv.ParseBool(v); err != nil {
			badRequest(c, "process must be a boolean")
			return
		}
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxBytes > 0 {
		// one byte past the ceiling is enough for validation to reject it
		r = io.LimitReader(f, h.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		writeError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	res, err := h.docs.Upload(c.Request.Context(), service.UploadRequest{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		OwnerID:  c.PostForm("owner_id"),
		Tier:     c.PostForm("tier"),
		Data:     data,
		Process:  process,
		Priority: priority,
	})
	if err != nil && res == nil {
		writeError(c, err)
		return
	}

	body := UploadResponse{
		DocumentID: res.Document.ID,
		StorageKey: res.Document.StorageKey,
		Status:     string(res.Document.Status),
		Job:        res.Job,
	}
	if err != nil {
		// stored, but the job could not be queued
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "document": body})
		return
	}
	c.JSON(http.StatusCreated, body)
}

// GetDocument handles GET /api/v1/documents/:id.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	view, err := h.docs.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteDocument handles DELETE /api/v1/documents/:id.
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.docs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitRequest is the body of POST /api/v1/documents/:id/jobs.
type SubmitRequest struct {
	Priority string `json:"priority"`
}

// SubmitJob handles POST /api/v1/documents/:id/jobs.
func (h *DocumentHandler) SubmitJob(c *gin.Context) {
	var req SubmitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.docs.Submit(c.Request.Context(), c.Param("id"), priority)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, view)
}

// ListJobs handles GET /api/v1/documents/:id/jobs.
func (h *DocumentHandler) ListJobs(c *gin.Context) {
	jobs, err := h.docs.JobsForDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *DocumentHandler) GetJob(c *gin.Context) {
	view, err := h.docs.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SignedURLRequest is the body of POST /api/v1/documents/:id/signed-url.
type SignedURLRequest struct {
	ExpiresInSeconds int    `json:"expires_in_seconds" binding:"min=0"`
	Watermark        string `json:"watermark"`
}

// SignedURL handles POST /api/v1/documents/:id/signed-url.
func (h *DocumentHandler) SignedURL(c *gin.Context) {
	var req SignedURLRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	signed, err := h.docs.SignedURL(c.Request.Context(), c.Param("id"), storage.SignedURLOptions{
		ExpiresIn: time.Duration(req.ExpiresInSeconds) * time.Second,
		Watermark: req.Watermark,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signed)
}

// Download handles GET /api/v1/files?token=...
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		badRequest(c, "token is required")
		return
	}

	dl, err := h.docs.DownloadByToken(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}

	if dl.Watermark != "" {
		c.Header("X-Document-Watermark", dl.Watermark)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Document.FileName))
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, dl.Document.MimeType, dl.Data)
}
