package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/docpipe/internal/api/handler"
	"github.com/timmy/docpipe/internal/api/middleware"
	"github.com/timmy/docpipe/internal/logger"
	"github.com/timmy/docpipe/internal/service"
)

// RouterConfig holds the HTTP-level settings of the router.
type RouterConfig struct {
	Mode           string
	CORS           middleware.CORSConfig
	MaxUploadBytes int64
	ArchiveMaxAge  int
	HealthChecks   map[string]handler.HealthCheck
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(docs *service.DocumentService, cfg RouterConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.HealthChecks)
	documentHandler := handler.NewDocumentHandler(docs, cfg.MaxUploadBytes)
	adminHandler := handler.NewAdminHandler(docs, cfg.ArchiveMaxAge)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Documents
		v1.POST("/documents", documentHandler.Upload)
		v1.GET("/documents/:id", documentHandler.GetDocument)
		v1.DELETE("/documents/:id", documentHandler.DeleteDocument)
		v1.POST("/documents/:id/signed-url", documentHandler.SignedURL)

		// Jobs
		v1.POST("/documents/:id/jobs", documentHandler.SubmitJob)
		v1.GET("/documents/:id/jobs", documentHandler.ListJobs)
		v1.GET("/jobs/:id", documentHandler.GetJob)

		// Signed downloads
		v1.GET("/files", documentHandler.Download)

		// Admin
		v1.POST("/admin/archive", adminHandler.Archive)
	}

	return r
}
