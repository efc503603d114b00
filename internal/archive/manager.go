package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/appdock/apphub-backend/internal/platform/gcp"
	"github.com/appdock/apphub-backend/internal/platform/logger"
)

// DefaultFolderName is used when an app prefix has no archive folder
// yet. Existing folders are matched case-insensitively so a manually
// created "Archive" keeps being reused instead of shadowed.
const DefaultFolderName = "archive"

// Manager keeps superseded package binaries. The archive is
// append-only from the lifecycle's point of view: entries are written
// on upgrade and never listed, read or purged by any other operation.
type Manager interface {
	EnsureArchiveFolder(ctx context.Context, appPrefix string) (string, error)
	ArchiveCurrentPackage(ctx context.Context, appPrefix, packageKey, version string) (string, error)
}

type manager struct {
	log    *logger.Logger
	bucket gcp.BucketService
}

func NewManager(log *logger.Logger, bucket gcp.BucketService) Manager {
	return &manager{
		log:    log.With("service", "ArchiveManager"),
		bucket: bucket,
	}
}

// ArchiveCurrentPackage copies the live package object into the app's
// archive folder under "<base>_<version><ext>" and returns the new
// key. An entry for the same version is overwritten, not duplicated.
func (m *manager) ArchiveCurrentPackage(ctx context.Context, appPrefix, packageKey, version string) (string, error) {
	folder, err := m.EnsureArchiveFolder(ctx, appPrefix)
	if err != nil {
		return "", err
	}

	base := path.Base(packageKey)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	archivedName := fmt.Sprintf("%s_%s%s", stem, strings.TrimSpace(version), ext)
	dstKey := strings.TrimRight(appPrefix, "/") + "/" + folder + "/" + archivedName

	if err := m.bucket.CopyObject(ctx, packageKey, dstKey); err != nil {
		return "", fmt.Errorf("archive %q as %q: %w", packageKey, dstKey, err)
	}

	m.log.Info("Archived package version", "src", packageKey, "dst", dstKey, "version", version)
	return dstKey, nil
}

// EnsureArchiveFolder reuses an existing folder whose name matches
// "archive" in any casing. Object stores have no real directories, so
// a missing folder needs no creation step; the first copy into the
// default name brings it into existence.
func (m *manager) EnsureArchiveFolder(ctx context.Context, appPrefix string) (string, error) {
	folders, err := m.bucket.ListFolders(ctx, appPrefix)
	if err != nil {
		return "", fmt.Errorf("list folders under %q: %w", appPrefix, err)
	}
	for _, f := range folders {
		if strings.EqualFold(f, DefaultFolderName) {
			return f, nil
		}
	}
	return DefaultFolderName, nil
}
