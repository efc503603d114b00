package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/appdock/apphub-backend/internal/platform/ctxutil"
	"github.com/appdock/apphub-backend/internal/platform/envutil"
	"github.com/appdock/apphub-backend/internal/platform/logger"
)

// Scope selects which app catalog a call targets.
type Scope string

const (
	ScopeSite   Scope = "site"
	ScopeTenant Scope = "tenant"
)

// Target identifies one catalog: the catalog site itself plus the
// scope that decides the API surface used against it.
type Target struct {
	Scope      Scope
	CatalogURL string
}

// ItemRef points at the catalog list item created for an uploaded
// package. The numeric id is what metadata updates and the hub sync
// endpoint key on.
type ItemRef struct {
	ItemID int
}

// Client is the remote catalog surface. Every call performs exactly
// one round trip with a freshly acquired token; callers own any
// sequencing or best-effort semantics on top.
type Client interface {
	UploadPackage(ctx context.Context, t Target, fileName string, data io.Reader) (*ItemRef, error)
	Deploy(ctx context.Context, t Target, productID string, skipFeatureDeployment bool) error
	Retract(ctx context.Context, t Target, productID string) error
	Remove(ctx context.Context, t Target, productID string) error
	InstallToSite(ctx context.Context, t Target, siteURL, productID string) error
	UpgradeInstalled(ctx context.Context, t Target, siteURL, productID string) error
	SyncToCollaborationHub(ctx context.Context, t Target, itemID int) error
	UpdateCatalogMetadata(ctx context.Context, t Target, itemID int, fields map[string]any) error
	CreateSubSite(ctx context.Context, parentSiteURL, title, urlSegment, templateID string) (string, error)
}

type Config struct {
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Timeout: time.Duration(envutil.Int("CATALOG_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

func New(log *logger.Logger, tokens TokenProvider, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &client{
		log:        log.With("client", "CatalogClient"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	tokens     TokenProvider
	httpClient *http.Client
}

// RemoteError is any non-2xx catalog response. Op names the failed
// operation so orchestration logs stay readable without the URL.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "catalog: <nil error>"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = "<empty body>"
	}
	if len(body) > 2000 {
		body = body[:2000] + "..."
	}
	return fmt.Sprintf("catalog %s: http %d: %s", e.Op, e.StatusCode, body)
}

func (e *RemoteError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (t Target) appsPath() string {
	if t.Scope == ScopeTenant {
		return "_api/web/tenantappcatalog"
	}
	return "_api/web/sitecollectionappcatalog"
}

func scopeAppsPath(scope Scope) string {
	return Target{Scope: scope}.appsPath()
}

func joinURL(base string, segments ...string) string {
	u := strings.TrimRight(strings.TrimSpace(base), "/")
	for _, s := range segments {
		u += "/" + strings.Trim(s, "/")
	}
	return u
}

func (c *client) UploadPackage(ctx context.Context, t Target, fileName string, data io.Reader) (*ItemRef, error) {
	endpoint := joinURL(t.CatalogURL, t.appsPath(),
		fmt.Sprintf("Add(overwrite=true, url='%s')", url.PathEscape(fileName))) +
		"?$expand=ListItemAllFields"

	raw, err := c.call(ctx, "UploadPackage", http.MethodPost, t.CatalogURL, endpoint, "application/octet-stream", data, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		D struct {
			ListItemAllFields struct {
				ID int `json:"Id"`
			} `json:"ListItemAllFields"`
		} `json:"d"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("catalog UploadPackage: decode response: %w", err)
	}
	return &ItemRef{ItemID: payload.D.ListItemAllFields.ID}, nil
}

func (c *client) Deploy(ctx context.Context, t Target, productID string, skipFeatureDeployment bool) error {
	endpoint := joinURL(t.CatalogURL, t.appsPath(),
		fmt.Sprintf("AvailableApps/GetById('%s')/Deploy", productID))
	body := map[string]any{"skipFeatureDeployment": skipFeatureDeployment}
	_, err := c.callJSON(ctx, "Deploy", t.CatalogURL, endpoint, body)
	return err
}

func (c *client) Retract(ctx context.Context, t Target, productID string) error {
	endpoint := joinURL(t.CatalogURL, t.appsPath(),
		fmt.Sprintf("AvailableApps/GetById('%s')/Retract", productID))
	_, err := c.callJSON(ctx, "Retract", t.CatalogURL, endpoint, nil)
	return err
}

func (c *client) Remove(ctx context.Context, t Target, productID string) error {
	endpoint := joinURL(t.CatalogURL, t.appsPath(),
		fmt.Sprintf("AvailableApps/GetById('%s')/Remove", productID))
	_, err := c.callJSON(ctx, "Remove", t.CatalogURL, endpoint, nil)
	return err
}

// InstallToSite runs against the consuming site, not the catalog site,
// so the token is acquired for the site's host.
func (c *client) InstallToSite(ctx context.Context, t Target, siteURL, productID string) error {
	endpoint := joinURL(siteURL, scopeAppsPath(t.Scope),
		fmt.Sprintf("AvailableApps/GetById('%s')/Install", productID))
	_, err := c.callJSON(ctx, "InstallToSite", siteURL, endpoint, nil)
	return err
}

func (c *client) UpgradeInstalled(ctx context.Context, t Target, siteURL, productID string) error {
	endpoint := joinURL(siteURL, scopeAppsPath(t.Scope),
		fmt.Sprintf("AvailableApps/GetById('%s')/Upgrade", productID))
	_, err := c.callJSON(ctx, "UpgradeInstalled", siteURL, endpoint, nil)
	return err
}

func (c *client) SyncToCollaborationHub(ctx context.Context, t Target, itemID int) error {
	endpoint := joinURL(t.CatalogURL, "_api/web/tenantappcatalog",
		fmt.Sprintf("SyncSolutionToTeams(id=%d)", itemID))
	_, err := c.callJSON(ctx, "SyncToCollaborationHub", t.CatalogURL, endpoint, nil)
	return err
}

func (c *client) UpdateCatalogMetadata(ctx context.Context, t Target, itemID int, fields map[string]any) error {
	endpoint := joinURL(t.CatalogURL,
		fmt.Sprintf("_api/web/lists/getbytitle('Apps for SharePoint')/items(%d)", itemID))

	headers := map[string]string{
		"X-HTTP-Method": "MERGE",
		"IF-MATCH":      "*",
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(fields); err != nil {
		return err
	}
	_, err := c.call(ctx, "UpdateCatalogMetadata", http.MethodPost, t.CatalogURL, endpoint, "application/json;odata=verbose", &buf, headers)
	return err
}

// CreateSubSite returns the URL of the created web.
func (c *client) CreateSubSite(ctx context.Context, parentSiteURL, title, urlSegment, templateID string) (string, error) {
	endpoint := joinURL(parentSiteURL, "_api/web/webinfos/add")
	body := map[string]any{
		"parameters": map[string]any{
			"Url":                  urlSegment,
			"Title":                title,
			"WebTemplate":          templateID,
			"UseUniquePermissions": false,
		},
	}
	if _, err := c.callJSON(ctx, "CreateSubSite", parentSiteURL, endpoint, body); err != nil {
		return "", err
	}
	return joinURL(parentSiteURL, urlSegment), nil
}

func (c *client) callJSON(ctx context.Context, op, resourceURL, endpoint string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	return c.call(ctx, op, http.MethodPost, resourceURL, endpoint, "application/json;odata=nometadata", &buf, nil)
}

// call performs a single round trip. Catalog operations are not
// retried here: a failed remote step must surface to the
// orchestration layer, which decides whether the step was best-effort.
func (c *client) call(ctx context.Context, op, method, resourceURL, endpoint, contentType string, body io.Reader, headers map[string]string) ([]byte, error) {
	token, err := c.tokens.Acquire(ctxutil.Default(ctx), resourceURL)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: acquire token: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json;odata=nometadata")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", op, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("catalog %s: read response: %w", op, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
