package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/docpipe/internal/service"
)

// AdminHandler handles maintenance operations.
type AdminHandler struct {
	docs          *service.DocumentService
	defaultMaxAge int
}

// NewAdminHandler creates a new admin handler. defaultMaxAge applies when a
// request omits max_age_days.
func NewAdminHandler(docs *service.DocumentService, defaultMaxAge int) *AdminHandler {
	return &AdminHandler{docs: docs, defaultMaxAge: defaultMaxAge}
}

// ArchiveRequest is the body of POST /api/v1/admin/archive.
type ArchiveRequest struct {
	MaxAgeDays *int `json:"max_age_days" binding:"omitempty,min=0"`
}

// Archive handles POST /api/v1/admin/archive.
func (h *AdminHandler) Archive(c *gin.Context) {
	var req ArchiveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	days := h.defaultMaxAge
	if req.MaxAgeDays != nil {
		days = *req.MaxAgeDays
	}

	moved, err := h.docs.Archive(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved, "max_age_days": days})
}
