package services

import (
	"context"

	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/types"
)

// AuditService appends lifecycle events to the audit trail. Parent
// key is the product id so the trail survives record deletion.
type AuditService interface {
	Record(ctx context.Context, actorID, parentKey, parentListName, eventKind, comment string) error
	History(ctx context.Context, parentKey string) ([]*types.AuditLogEntry, error)
}

type auditService struct {
	log  *logger.Logger
	repo repos.AuditLogRepo
}

func NewAuditService(log *logger.Logger, repo repos.AuditLogRepo) AuditService {
	return &auditService{
		log:  log.With("service", "AuditService"),
		repo: repo,
	}
}

func (s *auditService) Record(ctx context.Context, actorID, parentKey, parentListName, eventKind, comment string) error {
	_, err := s.repo.Create(ctx, nil, &types.AuditLogEntry{
		ActorID:        actorID,
		ParentKey:      parentKey,
		ParentListName: parentListName,
		EventKind:      eventKind,
		Comment:        comment,
	})
	if err != nil {
		s.log.Error("Audit entry write failed", "event_kind", eventKind, "parent_key", parentKey, "error", err)
	}
	return err
}

func (s *auditService) History(ctx context.Context, parentKey string) ([]*types.AuditLogEntry, error) {
	return s.repo.GetByParentKey(ctx, nil, parentKey)
}
