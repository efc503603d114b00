package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appdock/apphub-backend/internal/archive"
	"github.com/appdock/apphub-backend/internal/manifest"
	"github.com/appdock/apphub-backend/internal/platform/gcp"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/platform/redisx"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/types"
	"github.com/appdock/apphub-backend/internal/version"
)

const (
	auditListName = "apps"
	lockTTL       = 2 * time.Minute
)

// AppPrefix is the storage root for one app's binaries and assets.
func AppPrefix(productID string) string {
	return "apps/" + strings.ToLower(strings.Trim(strings.TrimSpace(productID), "{}"))
}

func assetPrefix(productID string) string {
	return AppPrefix(productID) + "/assets"
}

// PackageService owns the upload/upgrade/review half of the app
// lifecycle. Deployment to remote catalogs lives in
// DeploymentService.
type PackageService interface {
	UploadNew(ctx context.Context, actorID, fileName string, data []byte) (*types.AppRecord, error)
	Upgrade(ctx context.Context, appID uuid.UUID, actorID, fileName string, data []byte) (*types.AppRecord, error)
	Advance(ctx context.Context, appID uuid.UUID, actorID string) (*types.AppRecord, error)
	Reject(ctx context.Context, appID uuid.UUID, actorID, reason string) (*types.AppRecord, error)
	Resubmit(ctx context.Context, appID uuid.UUID, actorID string) (*types.AppRecord, error)
}

type packageService struct {
	log      *logger.Logger
	repo     repos.AppRecordRepo
	bucket   gcp.BucketService
	archiver archive.Manager
	locker   redisx.Locker
	notifier Notifier
	audit    AuditService
	registry Registry
}

func NewPackageService(
	log *logger.Logger,
	repo repos.AppRecordRepo,
	bucket gcp.BucketService,
	archiver archive.Manager,
	locker redisx.Locker,
	notifier Notifier,
	audit AuditService,
	registry Registry,
) PackageService {
	return &packageService{
		log:      log.With("service", "PackageService"),
		repo:     repo,
		bucket:   bucket,
		archiver: archiver,
		locker:   locker,
		notifier: notifier,
		audit:    audit,
		registry: registry,
	}
}

// UploadNew validates the uploaded archive and creates the app
// record. Validation failures leave no trace: no record, no stored
// object, no audit entry.
func (s *packageService) UploadNew(ctx context.Context, actorID, fileName string, data []byte) (*types.AppRecord, error) {
	pkg, err := manifest.Read(data)
	if err != nil {
		return nil, err
	}
	desc := pkg.Descriptor
	if !desc.IsComplete() {
		return nil, ErrIncompleteDescriptor
	}

	release, err := s.locker.Acquire(ctx, strings.ToLower(desc.ProductID), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	exists, err := s.repo.ExistsByProductID(ctx, nil, desc.ProductID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateProduct
	}

	packageKey := AppPrefix(desc.ProductID) + "/" + fileName
	record, err := s.repo.Create(ctx, nil, &types.AppRecord{
		ProductID:             desc.ProductID,
		Title:                 desc.Title,
		Version:               desc.Version,
		Status:                desc.Status,
		IsClientSideSolution:  desc.IsClientSideSolution,
		IsDomainIsolated:      desc.IsDomainIsolated,
		SkipFeatureDeployment: desc.SkipFeatureDeployment,
		MinPlatformVersion:    desc.MinPlatformVersion,
		APIPermissionsXML:     desc.APIPermissionsXML,
		PackageKey:            packageKey,
		PackageFileName:       fileName,
		SiteDeployments:       types.EncodeStringList(nil),
		DeveloperContacts:     types.EncodeStringList(nil),
	})
	if err != nil {
		return nil, err
	}

	if err := s.bucket.UploadFile(ctx, packageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store package: %w", err)
	}

	if pkg.Icon != nil {
		if err := s.storeIcon(ctx, record, pkg.Icon); err != nil {
			return nil, err
		}
	}

	_ = s.audit.Record(ctx, actorID, record.ProductID, auditListName, "Uploaded",
		fmt.Sprintf("version %s", record.Version))
	s.notifier.AppUploaded(ctx, record, actorID)
	s.registry.Invalidate()

	s.log.Info("New app uploaded", "product_id", record.ProductID, "version", record.Version)
	return s.repo.GetByID(ctx, nil, record.ID)
}

// Upgrade replaces the app's package with a newer version. The
// version gate rejects before any mutation; a record that was already
// approved gets its outgoing binary archived, named after the
// incoming version, before the new one lands.
func (s *packageService) Upgrade(ctx context.Context, appID uuid.UUID, actorID, fileName string, data []byte) (*types.AppRecord, error) {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, strings.ToLower(record.ProductID), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	pkg, err := manifest.Read(data)
	if err != nil {
		return nil, err
	}
	desc := pkg.Descriptor
	if !desc.IsComplete() {
		return nil, ErrIncompleteDescriptor
	}
	if err := version.CheckUpgrade(record.ProductID, record.Version, desc.ProductID, desc.Version); err != nil {
		return nil, err
	}

	previousVersion := record.Version
	appRoot := AppPrefix(record.ProductID)
	wasApproved := record.Status == types.StatusApproved
	outgoingKey := record.PackageKey
	newPackageKey := appRoot + "/" + fileName

	// Metadata lands first; the archive entry is then named after the
	// record as it now stands, i.e. the incoming version.
	fields := map[string]any{
		"version":                 desc.Version,
		"title":                   desc.Title,
		"status":                  types.StatusTestCases,
		"is_client_side_solution": desc.IsClientSideSolution,
		"is_domain_isolated":      desc.IsDomainIsolated,
		"skip_feature_deployment": desc.SkipFeatureDeployment,
		"min_platform_version":    desc.MinPlatformVersion,
		"api_permissions_xml":     desc.APIPermissionsXML,
		"package_key":             newPackageKey,
		"package_file_name":       fileName,
		"icon_key":                "",
		"icon_url":                "",
	}
	if err := s.repo.UpdateFields(ctx, nil, record.ID, fields); err != nil {
		return nil, err
	}

	if wasApproved && outgoingKey != "" {
		if _, err := s.archiver.ArchiveCurrentPackage(ctx, appRoot, outgoingKey, desc.Version); err != nil {
			return nil, err
		}
	}

	if outgoingKey != "" && outgoingKey != newPackageKey {
		if err := s.bucket.DeleteFile(ctx, outgoingKey); err != nil && !errors.Is(err, gcp.ErrObjectNotFound) {
			return nil, fmt.Errorf("remove superseded package: %w", err)
		}
	}
	if err := s.bucket.UploadFile(ctx, newPackageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store package: %w", err)
	}

	// Side assets are replaced wholesale: clear the prefix, then
	// re-upload whatever the new archive carries.
	if err := s.bucket.DeletePrefix(ctx, assetPrefix(record.ProductID)); err != nil {
		return nil, fmt.Errorf("clear asset prefix: %w", err)
	}

	updated, err := s.repo.GetByID(ctx, nil, record.ID)
	if err != nil {
		return nil, err
	}
	if pkg.Icon != nil {
		if err := s.storeIcon(ctx, updated, pkg.Icon); err != nil {
			return nil, err
		}
		updated, err = s.repo.GetByID(ctx, nil, record.ID)
		if err != nil {
			return nil, err
		}
	}

	_ = s.audit.Record(ctx, actorID, updated.ProductID, auditListName, "Upgraded",
		fmt.Sprintf("version %s -> %s", previousVersion, updated.Version))
	s.notifier.AppUpgraded(ctx, updated, previousVersion)
	s.registry.Invalidate()

	s.log.Info("App upgraded",
		"product_id", updated.ProductID,
		"previous_version", previousVersion,
		"version", updated.Version,
	)
	return updated, nil
}

func (s *packageService) storeIcon(ctx context.Context, record *types.AppRecord, icon *manifest.IconAsset) error {
	iconKey := assetPrefix(record.ProductID) + "/" + icon.Name
	if err := s.bucket.UploadFile(ctx, iconKey, bytes.NewReader(icon.Data)); err != nil {
		return fmt.Errorf("store icon: %w", err)
	}
	return s.repo.UpdateFields(ctx, nil, record.ID, map[string]any{
		"icon_key": iconKey,
		"icon_url": s.bucket.GetPublicURL(iconKey),
	})
}

// Advance moves the record one step along the review chain.
func (s *packageService) Advance(ctx context.Context, appID uuid.UUID, actorID string) (*types.AppRecord, error) {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return nil, err
	}
	next := types.NextStatus(record.Status)
	if next == "" {
		return nil, ErrNoForwardTransition
	}
	if err := s.repo.SetStatus(ctx, nil, record.ID, next); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, actorID, record.ProductID, auditListName, "StatusChanged",
		fmt.Sprintf("%s -> %s", record.Status, next))
	s.registry.Invalidate()
	return s.repo.GetByID(ctx, nil, record.ID)
}

func (s *packageService) Reject(ctx context.Context, appID uuid.UUID, actorID, reason string) (*types.AppRecord, error) {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return nil, err
	}
	if !types.IsPreDeployment(record.Status) {
		return nil, ErrNotRejectable
	}
	if err := s.repo.SetStatus(ctx, nil, record.ID, types.StatusRejected); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, actorID, record.ProductID, auditListName, "Rejected", reason)
	s.registry.Invalidate()
	return s.repo.GetByID(ctx, nil, record.ID)
}

// Resubmit re-enters the review chain at TechReview.
func (s *packageService) Resubmit(ctx context.Context, appID uuid.UUID, actorID string) (*types.AppRecord, error) {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return nil, err
	}
	if record.Status != types.StatusRejected {
		return nil, ErrNotResubmittable
	}
	if err := s.repo.SetStatus(ctx, nil, record.ID, types.StatusTechReview); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, actorID, record.ProductID, auditListName, "Resubmitted", "")
	s.registry.Invalidate()
	return s.repo.GetByID(ctx, nil, record.ID)
}
