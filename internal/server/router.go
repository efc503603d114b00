package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/appdock/apphub-backend/internal/handlers"
	"github.com/appdock/apphub-backend/internal/middleware"
)

type RouterConfig struct {
	AppHandler    *handlers.AppHandler
	RequestLogger *middleware.RequestLogger
	CORSOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("apphub"))
	if cfg.RequestLogger != nil {
		router.Use(cfg.RequestLogger.Handle())
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Actor-Id", "X-Request-Id"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/apps", cfg.AppHandler.UploadNew)
		api.GET("/apps", cfg.AppHandler.List)
		api.GET("/apps/:id", cfg.AppHandler.Get)
		api.GET("/apps/:id/audit", cfg.AppHandler.AuditTrail)
		api.POST("/apps/:id/upgrade", cfg.AppHandler.Upgrade)
		api.POST("/apps/:id/deploy", cfg.AppHandler.Deploy)
		api.POST("/apps/:id/retract", cfg.AppHandler.Retract)
		api.POST("/apps/:id/install-test-site", cfg.AppHandler.InstallTestSite)
		api.POST("/apps/:id/sync-hub", cfg.AppHandler.SyncHub)
		api.POST("/apps/:id/status", cfg.AppHandler.ChangeStatus)
	}

	return router
}
