package app

import (
	"gorm.io/gorm"

	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/repos"
)

type Repos struct {
	AppRecords repos.AppRecordRepo
	AuditLog   repos.AuditLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		AppRecords: repos.NewAppRecordRepo(db, log),
		AuditLog:   repos.NewAuditLogRepo(db, log),
	}
}
