package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/scheduler"
	"github.com/timmy/docpipe/internal/storage"
	"github.com/timmy/docpipe/internal/validation"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, validation.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, validation.ErrSecurityScan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, validation.ErrInvalidName), errors.Is(err, validation.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, scheduler.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrJobActive), errors.Is(err, storage.ErrTierTransition):
		return http.StatusConflict
	case errors.Is(err, storage.ErrSignatureExpired):
		return http.StatusGone
	case errors.Is(err, storage.ErrInvalidSignature):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as a JSON error body. Server errors are logged and
// their details kept out of the response.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
