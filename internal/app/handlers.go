package app

import (
	"github.com/appdock/apphub-backend/internal/handlers"
	"github.com/appdock/apphub-backend/internal/middleware"
	"github.com/appdock/apphub-backend/internal/platform/logger"
)

type Handlers struct {
	Apps *handlers.AppHandler
}

type Middleware struct {
	RequestLogger *middleware.RequestLogger
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	return Handlers{
		Apps: handlers.NewAppHandler(
			log,
			serviceset.Packages,
			serviceset.Deploys,
			serviceset.Registry,
			serviceset.Audit,
		),
	}
}

func wireMiddleware(log *logger.Logger) Middleware {
	return Middleware{
		RequestLogger: middleware.NewRequestLogger(log),
	}
}
