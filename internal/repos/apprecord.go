package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/types"
)

var ErrNotFound = errors.New("record not found")

type AppRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, record *types.AppRecord) (*types.AppRecord, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AppRecord, error)
	GetByProductID(ctx context.Context, tx *gorm.DB, productID string) (*types.AppRecord, error)
	ExistsByProductID(ctx context.Context, tx *gorm.DB, productID string) (bool, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.AppRecord, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
	SetPackageError(ctx context.Context, tx *gorm.DB, id uuid.UUID, message string) error
	ClearPackageError(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetTenantDeployed(ctx context.Context, tx *gorm.DB, id uuid.UUID, deployed bool) error
	AppendSiteDeployment(ctx context.Context, tx *gorm.DB, id uuid.UUID, siteURL string) error
}

type appRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAppRecordRepo(db *gorm.DB, baseLog *logger.Logger) AppRecordRepo {
	repoLog := baseLog.With("repo", "AppRecordRepo")
	return &appRecordRepo{db: db, log: repoLog}
}

func (r *appRecordRepo) Create(ctx context.Context, tx *gorm.DB, record *types.AppRecord) (*types.AppRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *appRecordRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AppRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var record types.AppRecord
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByProductID matches case-insensitively: product ids are GUID-like
// strings whose casing varies between packaging tools.
func (r *appRecordRepo) GetByProductID(ctx context.Context, tx *gorm.DB, productID string) (*types.AppRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var record types.AppRecord
	if err := transaction.WithContext(ctx).
		Where("LOWER(product_id) = LOWER(?)", productID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *appRecordRepo) ExistsByProductID(ctx context.Context, tx *gorm.DB, productID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.AppRecord{}).
		Where("LOWER(product_id) = LOWER(?)", productID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *appRecordRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.AppRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var records []*types.AppRecord
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *appRecordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.AppRecord{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appRecordRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	return r.UpdateFields(ctx, tx, id, map[string]any{"status": status})
}

func (r *appRecordRepo) SetPackageError(ctx context.Context, tx *gorm.DB, id uuid.UUID, message string) error {
	return r.UpdateFields(ctx, tx, id, map[string]any{"package_error_message": message})
}

func (r *appRecordRepo) ClearPackageError(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.UpdateFields(ctx, tx, id, map[string]any{"package_error_message": ""})
}

func (r *appRecordRepo) SetTenantDeployed(ctx context.Context, tx *gorm.DB, id uuid.UUID, deployed bool) error {
	return r.UpdateFields(ctx, tx, id, map[string]any{"is_tenant_deployed": deployed})
}

// AppendSiteDeployment adds siteURL to the tracked deployment list.
// Re-deploying to an already tracked site is a no-op, not a duplicate.
func (r *appRecordRepo) AppendSiteDeployment(ctx context.Context, tx *gorm.DB, id uuid.UUID, siteURL string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		var record types.AppRecord
		if err := inner.Where("id = ?", id).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		sites := record.SiteDeploymentList()
		for _, s := range sites {
			if s == siteURL {
				return nil
			}
		}
		sites = append(sites, siteURL)

		return inner.Model(&types.AppRecord{}).
			Where("id = ?", id).
			Update("site_deployments", types.EncodeStringList(sites)).Error
	})
}
