package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/appdock/apphub-backend/internal/platform/logger"
)

func testClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c, err := New(log, StaticTokenProvider("test-token"), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestUploadPackageReturnsItemRef(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"d":{"ListItemAllFields":{"Id":42}}}`))
	}))

	ref, err := c.UploadPackage(context.Background(), Target{Scope: ScopeTenant, CatalogURL: srv.URL}, "helpdesk.sppkg", strings.NewReader("PKBYTES"))
	if err != nil {
		t.Fatalf("UploadPackage: %v", err)
	}
	if ref.ItemID != 42 {
		t.Errorf("ItemID=%d, want 42", ref.ItemID)
	}
	if !strings.Contains(gotPath, "tenantappcatalog") {
		t.Errorf("path=%q, want tenant catalog surface", gotPath)
	}
	if !strings.Contains(gotPath, "Add(overwrite=true, url='helpdesk.sppkg')") {
		t.Errorf("path=%q, want Add endpoint with file name", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization=%q", gotAuth)
	}
	if gotBody != "PKBYTES" {
		t.Errorf("body=%q, want raw package bytes", gotBody)
	}
}

func TestScopeSelectsCatalogSurface(t *testing.T) {
	var gotPath string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.Deploy(context.Background(), Target{Scope: ScopeSite, CatalogURL: srv.URL}, "{pid}", true); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !strings.Contains(gotPath, "sitecollectionappcatalog") {
		t.Errorf("path=%q, want site collection catalog surface", gotPath)
	}
	if !strings.Contains(gotPath, "GetById('{pid}')/Deploy") {
		t.Errorf("path=%q, want Deploy endpoint", gotPath)
	}
}

func TestDeployCarriesSkipFeatureFlag(t *testing.T) {
	var gotBody string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.Deploy(context.Background(), Target{Scope: ScopeTenant, CatalogURL: srv.URL}, "pid", false); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !strings.Contains(gotBody, `"skipFeatureDeployment":false`) {
		t.Errorf("body=%q, want explicit skipFeatureDeployment", gotBody)
	}
}

func TestInstallTargetsConsumingSite(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	c, srv := testClient(t, mux)

	target := Target{Scope: ScopeTenant, CatalogURL: "https://catalog.invalid"}
	if err := c.InstallToSite(context.Background(), target, srv.URL+"/sites/test", "pid"); err != nil {
		t.Fatalf("InstallToSite: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/sites/test/_api/web/tenantappcatalog/AvailableApps") {
		t.Errorf("path=%q, want install against the site url", gotPath)
	}
	if !strings.HasSuffix(gotPath, "/Install") {
		t.Errorf("path=%q, want Install suffix", gotPath)
	}
}

func TestUpdateCatalogMetadataUsesMerge(t *testing.T) {
	var gotMethod, gotMatch, gotPath string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Header.Get("X-HTTP-Method")
		gotMatch = r.Header.Get("IF-MATCH")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.UpdateCatalogMetadata(context.Background(), Target{Scope: ScopeTenant, CatalogURL: srv.URL}, 7, map[string]any{"ShortDescription": "x"})
	if err != nil {
		t.Fatalf("UpdateCatalogMetadata: %v", err)
	}
	if gotMethod != "MERGE" || gotMatch != "*" {
		t.Errorf("X-HTTP-Method=%q IF-MATCH=%q", gotMethod, gotMatch)
	}
	if !strings.Contains(gotPath, "items(7)") {
		t.Errorf("path=%q, want item-scoped update", gotPath)
	}
}

func TestRemoteErrorSurfacesStatusAndBody(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("app is still installed somewhere"))
	}))

	err := c.Retract(context.Background(), Target{Scope: ScopeTenant, CatalogURL: srv.URL}, "pid")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v, want *RemoteError", err)
	}
	if re.Op != "Retract" || re.StatusCode != http.StatusConflict {
		t.Errorf("RemoteError=%+v", re)
	}
	if re.HTTPStatusCode() != http.StatusConflict {
		t.Errorf("HTTPStatusCode()=%d", re.HTTPStatusCode())
	}
	if !strings.Contains(re.Error(), "still installed") {
		t.Errorf("Error()=%q, want body included", re.Error())
	}
}

func TestNoRetryOnServerError(t *testing.T) {
	var calls int
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if err := c.Deploy(context.Background(), Target{Scope: ScopeTenant, CatalogURL: srv.URL}, "pid", true); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls=%d, want exactly one round trip", calls)
	}
}

func TestSyncToCollaborationHubUsesItemID(t *testing.T) {
	var gotPath string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.SyncToCollaborationHub(context.Background(), Target{Scope: ScopeTenant, CatalogURL: srv.URL}, 99); err != nil {
		t.Fatalf("SyncToCollaborationHub: %v", err)
	}
	if !strings.Contains(gotPath, "SyncSolutionToTeams(id=99)") {
		t.Errorf("path=%q", gotPath)
	}
}

func TestCreateSubSitePostsParameters(t *testing.T) {
	var gotPath, gotBody string
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))

	siteURL, err := c.CreateSubSite(context.Background(), srv.URL+"/sites/apps", "Helpdesk Test", "helpdesk-140", "STS#3")
	if err != nil {
		t.Fatalf("CreateSubSite: %v", err)
	}
	if siteURL != srv.URL+"/sites/apps/helpdesk-140" {
		t.Errorf("siteURL=%q", siteURL)
	}
	if !strings.HasSuffix(gotPath, "/sites/apps/_api/web/webinfos/add") {
		t.Errorf("path=%q", gotPath)
	}
	for _, want := range []string{`"Url":"helpdesk-140"`, `"Title":"Helpdesk Test"`, `"WebTemplate":"STS#3"`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("body=%q, missing %s", gotBody, want)
		}
	}
}
