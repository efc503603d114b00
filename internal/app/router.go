package app

import (
	"github.com/gin-gonic/gin"

	"github.com/appdock/apphub-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AppHandler:    handlerset.Apps,
		RequestLogger: mw.RequestLogger,
		CORSOrigins:   cfg.CORSOrigins,
	})
}
