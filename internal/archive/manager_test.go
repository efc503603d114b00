package archive

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/appdock/apphub-backend/internal/platform/gcp"
	"github.com/appdock/apphub-backend/internal/platform/logger"
)

// memBucket is an in-memory stand-in for object storage with the same
// flat-keys-plus-delimiter folder semantics.
type memBucket struct {
	objects map[string][]byte
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}}
}

func (b *memBucket) UploadFile(_ context.Context, key string, file io.Reader) error {
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.objects[key] = raw
	return nil
}

func (b *memBucket) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := b.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBucket) CopyObject(_ context.Context, srcKey, dstKey string) error {
	raw, ok := b.objects[srcKey]
	if !ok {
		return gcp.ErrObjectNotFound
	}
	b.objects[dstKey] = append([]byte(nil), raw...)
	return nil
}

func (b *memBucket) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *memBucket) ListFolders(_ context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := map[string]bool{}
	for k := range b.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if i := strings.Index(rest, "/"); i > 0 {
			seen[rest[:i]] = true
		}
	}
	var folders []string
	for f := range seen {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return folders, nil
}

func (b *memBucket) DeleteFile(_ context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return gcp.ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *memBucket) DeletePrefix(_ context.Context, prefix string) error {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			delete(b.objects, k)
		}
	}
	return nil
}

func (b *memBucket) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

func testManager(t *testing.T, bucket gcp.BucketService) Manager {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewManager(log, bucket)
}

func TestArchiveCurrentPackageNamesByVersion(t *testing.T) {
	bucket := newMemBucket()
	bucket.objects["apps/helpdesk/helpdesk.sppkg"] = []byte("v1 bytes")
	m := testManager(t, bucket)

	key, err := m.ArchiveCurrentPackage(context.Background(), "apps/helpdesk", "apps/helpdesk/helpdesk.sppkg", "1.0.0.0")
	if err != nil {
		t.Fatalf("ArchiveCurrentPackage: %v", err)
	}
	if key != "apps/helpdesk/archive/helpdesk_1.0.0.0.sppkg" {
		t.Errorf("key=%q", key)
	}
	if string(bucket.objects[key]) != "v1 bytes" {
		t.Errorf("archived bytes=%q", bucket.objects[key])
	}
	if _, ok := bucket.objects["apps/helpdesk/helpdesk.sppkg"]; !ok {
		t.Error("live package must not be removed by archiving")
	}
}

func TestArchiveReusesExistingFolderCaseInsensitive(t *testing.T) {
	bucket := newMemBucket()
	bucket.objects["apps/helpdesk/helpdesk.sppkg"] = []byte("v2")
	bucket.objects["apps/helpdesk/Archive/helpdesk_1.0.0.0.sppkg"] = []byte("v1")
	m := testManager(t, bucket)

	key, err := m.ArchiveCurrentPackage(context.Background(), "apps/helpdesk", "apps/helpdesk/helpdesk.sppkg", "2.0.0.0")
	if err != nil {
		t.Fatalf("ArchiveCurrentPackage: %v", err)
	}
	if key != "apps/helpdesk/Archive/helpdesk_2.0.0.0.sppkg" {
		t.Errorf("key=%q, want reuse of existing Archive folder", key)
	}
}

func TestArchiveSameVersionOverwrites(t *testing.T) {
	bucket := newMemBucket()
	bucket.objects["apps/helpdesk/helpdesk.sppkg"] = []byte("retry bytes")
	bucket.objects["apps/helpdesk/archive/helpdesk_1.0.0.0.sppkg"] = []byte("stale bytes")
	m := testManager(t, bucket)

	key, err := m.ArchiveCurrentPackage(context.Background(), "apps/helpdesk", "apps/helpdesk/helpdesk.sppkg", "1.0.0.0")
	if err != nil {
		t.Fatalf("ArchiveCurrentPackage: %v", err)
	}
	if string(bucket.objects[key]) != "retry bytes" {
		t.Errorf("archived bytes=%q, want overwrite", bucket.objects[key])
	}
	keys, _ := bucket.ListKeys(context.Background(), "apps/helpdesk/archive/")
	if len(keys) != 1 {
		t.Errorf("archive entries=%v, want a single entry per version", keys)
	}
}

func TestArchiveMissingSourceFails(t *testing.T) {
	m := testManager(t, newMemBucket())

	_, err := m.ArchiveCurrentPackage(context.Background(), "apps/helpdesk", "apps/helpdesk/helpdesk.sppkg", "1.0.0.0")
	if err == nil {
		t.Fatal("expected error for missing source object")
	}
}
