package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/appdock/apphub-backend/internal/archive"
	"github.com/appdock/apphub-backend/internal/catalog"
	"github.com/appdock/apphub-backend/internal/platform/gcp"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/platform/redisx"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/types"
)

// ---- package archive builder ----

func buildPackage(t *testing.T, productID, version, title string, extra map[string]string) []byte {
	t.Helper()
	manifestXML := fmt.Sprintf(
		`<App ProductID="%s" Version="%s" Title="%s" IsClientSideSolution="true" SkipFeatureDeployment="true" SharePointMinVersion="16.0.0.0"/>`,
		productID, version, title,
	)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("AppManifest.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(manifestXML)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	for name, content := range extra {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %q: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// ---- in-memory bucket ----

type memBucket struct {
	mu      sync.Mutex
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
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = raw
	return nil
}

func (b *memBucket) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBucket) CopyObject(_ context.Context, srcKey, dstKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[srcKey]
	if !ok {
		return gcp.ErrObjectNotFound
	}
	b.objects[dstKey] = append([]byte(nil), raw...)
	return nil
}

func (b *memBucket) ListKeys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
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
	b.mu.Lock()
	defer b.mu.Unlock()
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
	b.mu.Lock()
	defer b.mu.Unlock()
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
	b.mu.Lock()
	defer b.mu.Unlock()
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

func (b *memBucket) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *memBucket) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// ---- fake catalog client ----

type catalogCall struct {
	Op        string
	Target    catalog.Target
	ProductID string
	SiteURL   string
	ItemID    int
	Skip      bool
	FileName  string
	Fields    map[string]any
}

type fakeCatalog struct {
	mu    sync.Mutex
	calls []catalogCall

	failOps    map[string]error
	nextItemID int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{failOps: map[string]error{}, nextItemID: 100}
}

func (f *fakeCatalog) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op] = err
}

func (f *fakeCatalog) record(c catalogCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.failOps[c.Op]
}

func (f *fakeCatalog) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Op)
	}
	return out
}

func (f *fakeCatalog) callsFor(op string) []catalogCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalogCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCatalog) UploadPackage(_ context.Context, t catalog.Target, fileName string, data io.Reader) (*catalog.ItemRef, error) {
	_, _ = io.ReadAll(data)
	if err := f.record(catalogCall{Op: "UploadPackage", Target: t, FileName: fileName}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextItemID++
	return &catalog.ItemRef{ItemID: f.nextItemID}, nil
}

func (f *fakeCatalog) Deploy(_ context.Context, t catalog.Target, productID string, skip bool) error {
	return f.record(catalogCall{Op: "Deploy", Target: t, ProductID: productID, Skip: skip})
}

func (f *fakeCatalog) Retract(_ context.Context, t catalog.Target, productID string) error {
	return f.record(catalogCall{Op: "Retract", Target: t, ProductID: productID})
}

func (f *fakeCatalog) Remove(_ context.Context, t catalog.Target, productID string) error {
	return f.record(catalogCall{Op: "Remove", Target: t, ProductID: productID})
}

func (f *fakeCatalog) InstallToSite(_ context.Context, t catalog.Target, siteURL, productID string) error {
	return f.record(catalogCall{Op: "InstallToSite", Target: t, SiteURL: siteURL, ProductID: productID})
}

func (f *fakeCatalog) UpgradeInstalled(_ context.Context, t catalog.Target, siteURL, productID string) error {
	return f.record(catalogCall{Op: "UpgradeInstalled", Target: t, SiteURL: siteURL, ProductID: productID})
}

func (f *fakeCatalog) SyncToCollaborationHub(_ context.Context, t catalog.Target, itemID int) error {
	return f.record(catalogCall{Op: "SyncToCollaborationHub", Target: t, ItemID: itemID})
}

func (f *fakeCatalog) UpdateCatalogMetadata(_ context.Context, t catalog.Target, itemID int, fields map[string]any) error {
	return f.record(catalogCall{Op: "UpdateCatalogMetadata", Target: t, ItemID: itemID, Fields: fields})
}

func (f *fakeCatalog) CreateSubSite(_ context.Context, parentSiteURL, title, urlSegment, templateID string) (string, error) {
	if err := f.record(catalogCall{Op: "CreateSubSite", SiteURL: parentSiteURL, FileName: urlSegment}); err != nil {
		return "", err
	}
	return strings.TrimRight(parentSiteURL, "/") + "/" + urlSegment, nil
}

// ---- fake notifier ----

type notifierEvent struct {
	Kind    string
	AppID   string
	Payload string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (n *fakeNotifier) add(kind, appID, payload string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{Kind: kind, AppID: appID, Payload: payload})
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func (n *fakeNotifier) AppUploaded(_ context.Context, record *types.AppRecord, actorID string) {
	n.add("uploaded", record.ID.String(), actorID)
}

func (n *fakeNotifier) AppUpgraded(_ context.Context, record *types.AppRecord, previousVersion string) {
	n.add("upgraded", record.ID.String(), previousVersion)
}

func (n *fakeNotifier) AppDeployed(_ context.Context, record *types.AppRecord, scope string) {
	n.add("deployed", record.ID.String(), scope)
}

func (n *fakeNotifier) TestSiteReady(_ context.Context, record *types.AppRecord, siteURL string) {
	n.add("test_site_ready", record.ID.String(), siteURL)
}

// ---- wired fixture ----

type fixture struct {
	log      *logger.Logger
	db       *gorm.DB
	repo     repos.AppRecordRepo
	auditRep repos.AuditLogRepo
	bucket   *memBucket
	catalog  *fakeCatalog
	notifier *fakeNotifier
	packages PackageService
	deploys  DeploymentService
	registry Registry
}

var fixtureSeq atomic.Int64

func newFixture(t *testing.T) *fixture {
	t.Helper()

	// Named in-memory databases: the sql pool may open several
	// connections, and an anonymous :memory: DB is per-connection.
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", fixtureSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.AppRecord{}, &types.AuditLogEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	appRepo := repos.NewAppRecordRepo(db, log)
	auditRepo := repos.NewAuditLogRepo(db, log)
	bucket := newMemBucket()
	fc := newFakeCatalog()
	fn := &fakeNotifier{}
	archiver := archive.NewManager(log, bucket)
	locker := redisx.NewLocalLocker()
	auditSvc := NewAuditService(log, auditRepo)
	reg := NewRegistry(log, appRepo, 0)

	packages := NewPackageService(log, appRepo, bucket, archiver, locker, fn, auditSvc, reg)
	deploys := NewDeploymentService(log, DeploymentConfig{
		TenantCatalogURL:   "https://tenant.test/sites/catalog",
		TestSiteParentURL:  "https://tenant.test/sites/testapps",
		TestSiteTemplateID: "STS#3",
	}, appRepo, bucket, fc, locker, fn, reg)

	return &fixture{
		log:      log,
		db:       db,
		repo:     appRepo,
		auditRep: auditRepo,
		bucket:   bucket,
		catalog:  fc,
		notifier: fn,
		packages: packages,
		deploys:  deploys,
		registry: reg,
	}
}

func (f *fixture) uploadApp(t *testing.T, productID, ver, title string) *types.AppRecord {
	t.Helper()
	data := buildPackage(t, productID, ver, title, nil)
	record, err := f.packages.UploadNew(context.Background(), "tester@contoso.example", "app.sppkg", data)
	if err != nil {
		t.Fatalf("UploadNew: %v", err)
	}
	return record
}
