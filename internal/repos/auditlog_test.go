package repos

import (
	"context"
	"testing"

	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/types"
)

func TestAuditLogCreateAndFetchByParent(t *testing.T) {
	db := testDB(t)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	repo := NewAuditLogRepo(db, log)

	for _, kind := range []string{"Uploaded", "Deployed"} {
		if _, err := repo.Create(context.Background(), nil, &types.AuditLogEntry{
			ActorID:        "user@contoso.example",
			ParentKey:      "{pid-audit}",
			ParentListName: "apps",
			EventKind:      kind,
			Comment:        "via api",
		}); err != nil {
			t.Fatalf("Create(%s): %v", kind, err)
		}
	}

	entries, err := repo.GetByParentKey(context.Background(), nil, "{pid-audit}")
	if err != nil {
		t.Fatalf("GetByParentKey: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries=%d, want 2", len(entries))
	}
	if entries[0].EventKind != "Uploaded" || entries[1].EventKind != "Deployed" {
		t.Errorf("order=%s,%s, want chronological", entries[0].EventKind, entries[1].EventKind)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("created_at should be set on insert")
	}
}
