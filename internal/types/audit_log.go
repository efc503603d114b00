package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogEntry records a lifecycle event against a parent item in an
// external list; consumed by the dashboard collaborators.
type AuditLogEntry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID        string    `gorm:"column:actor_id;not null" json:"actor_id"`
	ParentKey      string    `gorm:"column:parent_key;not null;index" json:"parent_key"`
	ParentListName string    `gorm:"column:parent_list_name;not null" json:"parent_list_name"`
	EventKind      string    `gorm:"column:event_kind;not null" json:"event_kind"`
	Comment        string    `gorm:"column:comment;type:text" json:"comment"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }

func (e *AuditLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
