package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/appdock/apphub-backend/internal/catalog"
	"github.com/appdock/apphub-backend/internal/platform/gcp"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/platform/redisx"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/types"
)

// packageExtensions are the recognized package binary suffixes, in
// match order. Binary lookup is first-match; icon lookup in the
// manifest reader is last-match.
var packageExtensions = []string{".sppkg", ".app"}

// DeploymentConfig carries the fixed remote endpoints. The tenant
// catalog is one well-known site; test installs go under a dedicated
// parent site with its own site-collection catalog.
type DeploymentConfig struct {
	TenantCatalogURL   string
	TestSiteParentURL  string
	TestSiteTemplateID string
}

type DeployOptions struct {
	Scope     catalog.Scope
	SiteURL   string
	TrackSite bool
}

// DeploymentService sequences remote catalog operations for one app.
// Steps inside a run are strictly ordered; runs for different
// products are serialized only per product via the shared locker.
type DeploymentService interface {
	Deploy(ctx context.Context, appID uuid.UUID, opts DeployOptions) (*types.AppRecord, error)
	InstallToNewTestSite(ctx context.Context, appID uuid.UUID) (string, error)
	RetractAndRemove(ctx context.Context, appID uuid.UUID, scope catalog.Scope, siteURL string, alsoRemove bool) error
	SyncToCollaborationHub(ctx context.Context, appID uuid.UUID) error
}

type deploymentService struct {
	log      *logger.Logger
	cfg      DeploymentConfig
	repo     repos.AppRecordRepo
	bucket   gcp.BucketService
	catalog  catalog.Client
	locker   redisx.Locker
	notifier Notifier
	registry Registry
	runner   *stepRunner
}

func NewDeploymentService(
	log *logger.Logger,
	cfg DeploymentConfig,
	repo repos.AppRecordRepo,
	bucket gcp.BucketService,
	catalogClient catalog.Client,
	locker redisx.Locker,
	notifier Notifier,
	registry Registry,
) DeploymentService {
	serviceLog := log.With("service", "DeploymentService")
	return &deploymentService{
		log:      serviceLog,
		cfg:      cfg,
		repo:     repo,
		bucket:   bucket,
		catalog:  catalogClient,
		locker:   locker,
		notifier: notifier,
		registry: registry,
		runner:   newStepRunner(serviceLog),
	}
}

func (s *deploymentService) target(opts DeployOptions) catalog.Target {
	if opts.Scope == catalog.ScopeTenant {
		return catalog.Target{Scope: catalog.ScopeTenant, CatalogURL: s.cfg.TenantCatalogURL}
	}
	return catalog.Target{Scope: catalog.ScopeSite, CatalogURL: opts.SiteURL}
}

// Deploy pushes the app's package binary into the target catalog and
// deploys it. A failed deploy leaves the binary uploaded and the app
// in an error state; nothing is retracted automatically.
func (s *deploymentService) Deploy(ctx context.Context, appID uuid.UUID, opts DeployOptions) (*types.AppRecord, error) {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, strings.ToLower(record.ProductID), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.deployRun(ctx, record, opts, record.SkipFeatureDeployment, true); err != nil {
		return nil, err
	}

	s.notifier.AppDeployed(ctx, record, string(opts.Scope))
	s.registry.Invalidate()
	return s.repo.GetByID(ctx, nil, record.ID)
}

// deployRun is the shared deploy sequence. setStatus is false for
// test-site installs, which must not move the record out of review.
func (s *deploymentService) deployRun(ctx context.Context, record *types.AppRecord, opts DeployOptions, skipFeatureDeployment, setStatus bool) error {
	tgt := s.target(opts)

	var packageData []byte
	var itemRef *catalog.ItemRef

	steps := []Step{
		{
			Name: "load package binary",
			Run: func(ctx context.Context) error {
				data, err := s.loadPackageBinary(ctx, record)
				if err != nil {
					return err
				}
				packageData = data
				return nil
			},
		},
		{
			// A previous deployment of the same product may still be
			// live in the target catalog. Failures here mean there was
			// nothing to retract.
			Name:       "retract previous",
			BestEffort: true,
			Run: func(ctx context.Context) error {
				if err := s.catalog.Retract(ctx, tgt, record.ProductID); err != nil {
					return err
				}
				if err := s.catalog.Remove(ctx, tgt, record.ProductID); err != nil {
					s.log.Warn("Remove after retract failed",
						"product_id", record.ProductID,
						"error", err.Error(),
					)
				}
				return nil
			},
		},
		{
			Name: "upload to catalog",
			Run: func(ctx context.Context) error {
				ref, err := s.catalog.UploadPackage(ctx, tgt, record.PackageFileName, bytes.NewReader(packageData))
				if err != nil {
					return err
				}
				itemRef = ref
				return s.repo.UpdateFields(ctx, nil, record.ID, map[string]any{
					"catalog_item_id": ref.ItemID,
				})
			},
		},
		{
			Name: "update catalog metadata",
			Run: func(ctx context.Context) error {
				return s.catalog.UpdateCatalogMetadata(ctx, tgt, itemRef.ItemID, map[string]any{
					"Title":            record.Title,
					"ShortDescription": record.Description,
					"IconUrl":          record.IconURL,
					"SupportUrl":       record.SupportURL,
					"VideoUrl":         record.VideoURL,
				})
			},
		},
		{
			Name: "deploy",
			Run: func(ctx context.Context) error {
				return s.catalog.Deploy(ctx, tgt, record.ProductID, skipFeatureDeployment)
			},
		},
	}

	if err := s.runner.run(ctx, "Deploy", steps); err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) && stepErr.Step == "deploy" {
			if dbErr := s.repo.SetPackageError(ctx, nil, record.ID, stepErr.Err.Error()); dbErr != nil {
				s.log.Error("Recording deploy failure state failed", "app_id", record.ID, "error", dbErr)
			}
			s.registry.Invalidate()
		}
		return err
	}

	fields := map[string]any{"package_error_message": ""}
	if opts.Scope == catalog.ScopeTenant {
		fields["is_tenant_deployed"] = true
		if setStatus {
			fields["status"] = types.StatusTenantDeployed
		}
	} else if setStatus {
		fields["status"] = types.StatusSiteDeployed
	}
	if err := s.repo.UpdateFields(ctx, nil, record.ID, fields); err != nil {
		return err
	}
	if opts.Scope == catalog.ScopeSite && opts.TrackSite && opts.SiteURL != "" {
		if err := s.repo.AppendSiteDeployment(ctx, nil, record.ID, opts.SiteURL); err != nil {
			return err
		}
	}
	return nil
}

// loadPackageBinary locates the package object under the app's
// storage root. First file with a recognized package extension wins;
// archived copies live one level deeper and are never candidates.
func (s *deploymentService) loadPackageBinary(ctx context.Context, record *types.AppRecord) ([]byte, error) {
	root := AppPrefix(record.ProductID) + "/"
	keys, err := s.bucket.ListKeys(ctx, root)
	if err != nil {
		return nil, err
	}

	var packageKey string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, root)
		if strings.Contains(rest, "/") {
			continue
		}
		ext := strings.ToLower(path.Ext(rest))
		for _, candidate := range packageExtensions {
			if ext == candidate {
				packageKey = key
				break
			}
		}
		if packageKey != "" {
			break
		}
	}
	if packageKey == "" {
		return nil, fmt.Errorf("no package binary under %q", root)
	}

	r, err := s.bucket.DownloadFile(ctx, packageKey)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// InstallToNewTestSite deploys to the test parent's site catalog with
// feature deployment forced on, creates a sub-site for this version
// and installs the app into it. Returns the new site URL.
func (s *deploymentService) InstallToNewTestSite(ctx context.Context, appID uuid.UUID) (string, error) {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return "", err
	}

	release, err := s.locker.Acquire(ctx, strings.ToLower(record.ProductID), lockTTL)
	if err != nil {
		return "", err
	}
	defer release()

	opts := DeployOptions{Scope: catalog.ScopeSite, SiteURL: s.cfg.TestSiteParentURL}
	if err := s.deployRun(ctx, record, opts, false, false); err != nil {
		return "", err
	}

	tgt := s.target(opts)
	segment := testSiteSegment(record)
	siteURL, err := s.catalog.CreateSubSite(ctx, s.cfg.TestSiteParentURL,
		fmt.Sprintf("%s %s test", record.Title, record.Version), segment, s.cfg.TestSiteTemplateID)
	if err != nil {
		return "", err
	}
	if err := s.catalog.InstallToSite(ctx, tgt, siteURL, record.ProductID); err != nil {
		return "", err
	}

	s.notifier.TestSiteReady(ctx, record, siteURL)
	s.log.Info("Test site ready", "product_id", record.ProductID, "site_url", siteURL)
	return siteURL, nil
}

// testSiteSegment derives a URL segment from title and version, e.g.
// "Contoso Helpdesk" 1.4.0 -> "contoso-helpdesk-1-4-0".
func testSiteSegment(record *types.AppRecord) string {
	slug := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToLower(strings.TrimSpace(s)) {
			switch {
			case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
				b.WriteRune(r)
			case r == ' ' || r == '.' || r == '-' || r == '_':
				b.WriteRune('-')
			}
		}
		return strings.Trim(b.String(), "-")
	}
	return slug(record.Title) + "-" + slug(record.Version)
}

// RetractAndRemove pulls the app out of the target catalog. Both
// halves are best-effort: a retraction failure means there was
// nothing live, and removal is only attempted when requested.
func (s *deploymentService) RetractAndRemove(ctx context.Context, appID uuid.UUID, scope catalog.Scope, siteURL string, alsoRemove bool) error {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return err
	}

	release, err := s.locker.Acquire(ctx, strings.ToLower(record.ProductID), lockTTL)
	if err != nil {
		return err
	}
	defer release()

	tgt := s.target(DeployOptions{Scope: scope, SiteURL: siteURL})

	retractErr := s.catalog.Retract(ctx, tgt, record.ProductID)
	if retractErr != nil {
		s.log.Warn("Retract failed, treating as nothing-to-retract",
			"product_id", record.ProductID,
			"error", retractErr.Error(),
		)
	}
	if alsoRemove {
		if err := s.catalog.Remove(ctx, tgt, record.ProductID); err != nil {
			s.log.Warn("Remove failed",
				"product_id", record.ProductID,
				"error", err.Error(),
			)
		}
	}

	if scope == catalog.ScopeTenant && retractErr == nil {
		if err := s.repo.SetTenantDeployed(ctx, nil, record.ID, false); err != nil {
			return err
		}
		s.registry.Invalidate()
	}
	return nil
}

// SyncToCollaborationHub pushes the tenant-catalog row into the
// collaboration hub. The call resolves either way; a failure is
// logged but not surfaced to the caller.
func (s *deploymentService) SyncToCollaborationHub(ctx context.Context, appID uuid.UUID) error {
	record, err := s.repo.GetByID(ctx, nil, appID)
	if err != nil {
		return err
	}
	if record.CatalogItemID == 0 {
		return fmt.Errorf("app %s has no catalog item id; deploy to the tenant catalog first", record.ProductID)
	}

	tgt := catalog.Target{Scope: catalog.ScopeTenant, CatalogURL: s.cfg.TenantCatalogURL}
	if err := s.catalog.SyncToCollaborationHub(ctx, tgt, record.CatalogItemID); err != nil {
		s.log.Warn("Collaboration hub sync failed",
			"product_id", record.ProductID,
			"catalog_item_id", record.CatalogItemID,
			"error", err.Error(),
		)
	}
	return nil
}
