package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/recall-backend/internal/handlers"
	"github.com/yungbote/recall-backend/internal/middleware"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *middleware.AuthMiddleware

	MemoryHandler *handlers.MemoryHandler
	ToolHandler   *handlers.ToolHandler

	OtelEnabled bool
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	if cfg.OtelEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))

	r.GET("/healthcheck", handlers.HealthCheck)

	api := r.Group("/api")
	{
		// Tool discovery is public; execution requires auth.
		if cfg.ToolHandler != nil {
			api.GET("/tools", cfg.ToolHandler.List)
		}

		protected := api.Group("/")
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.MemoryHandler != nil {
			protected.GET("/memories", cfg.MemoryHandler.ListOrSearch)
			protected.POST("/memories", cfg.MemoryHandler.Create)
			protected.GET("/memories/preferences", cfg.MemoryHandler.GetPreferences)
			protected.PUT("/memories/preferences", cfg.MemoryHandler.SetPreferences)
			protected.POST("/memories/condense", cfg.MemoryHandler.Condense)
			protected.GET("/memories/:id", cfg.MemoryHandler.Get)
			protected.DELETE("/memories/:id", cfg.MemoryHandler.Delete)
		}

		if cfg.ToolHandler != nil {
			protected.POST("/tools/execute", cfg.ToolHandler.Execute)
		}
	}

	return r
}
