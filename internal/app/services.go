package app

import (
	"github.com/appdock/apphub-backend/internal/archive"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/services"
)

type Services struct {
	Archiver archive.Manager
	Notifier services.Notifier
	Audit    services.AuditService
	Registry services.Registry
	Packages services.PackageService
	Deploys  services.DeploymentService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reposet Repos) Services {
	archiver := archive.NewManager(log, clients.Bucket)
	notifier := services.NewNotificationService(log, cfg.Notify, clients.Email, clients.Flows, clients.EventBus)
	audit := services.NewAuditService(log, reposet.AuditLog)
	registry := services.NewRegistry(log, reposet.AppRecords, cfg.RegistryTTL)

	packages := services.NewPackageService(
		log,
		reposet.AppRecords,
		clients.Bucket,
		archiver,
		clients.Locker,
		notifier,
		audit,
		registry,
	)
	deploys := services.NewDeploymentService(
		log,
		cfg.Deployment,
		reposet.AppRecords,
		clients.Bucket,
		clients.Catalog,
		clients.Locker,
		notifier,
		registry,
	)

	return Services{
		Archiver: archiver,
		Notifier: notifier,
		Audit:    audit,
		Registry: registry,
		Packages: packages,
		Deploys:  deploys,
	}
}
