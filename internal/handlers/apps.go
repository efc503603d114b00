package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/appdock/apphub-backend/internal/catalog"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/services"
)

// maxPackageSize bounds multipart package uploads.
const maxPackageSize = 256 << 20

type AppHandler struct {
	log      *logger.Logger
	packages services.PackageService
	deploys  services.DeploymentService
	registry services.Registry
	audit    services.AuditService
}

func NewAppHandler(
	log *logger.Logger,
	packages services.PackageService,
	deploys services.DeploymentService,
	registry services.Registry,
	audit services.AuditService,
) *AppHandler {
	return &AppHandler{
		log:      log.With("handler", "AppHandler"),
		packages: packages,
		deploys:  deploys,
		registry: registry,
		audit:    audit,
	}
}

func actorID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("X-Actor-Id")); v != "" {
		return v
	}
	return "anonymous"
}

func (h *AppHandler) appID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_app_id", errors.New("app id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *AppHandler) readPackage(c *gin.Context) (string, []byte, bool) {
	fh, err := c.FormFile("package")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_package", errors.New("multipart field 'package' required"))
		return "", nil, false
	}
	if fh.Size > maxPackageSize {
		RespondError(c, http.StatusRequestEntityTooLarge, "package_too_large", errors.New("package exceeds size limit"))
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_package", err)
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_package", err)
		return "", nil, false
	}
	return fh.Filename, data, true
}

// POST /api/apps
func (h *AppHandler) UploadNew(c *gin.Context) {
	fileName, data, ok := h.readPackage(c)
	if !ok {
		return
	}

	record, err := h.packages.UploadNew(c.Request.Context(), actorID(c), fileName, data)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// POST /api/apps/:id/upgrade
func (h *AppHandler) Upgrade(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}
	fileName, data, ok := h.readPackage(c)
	if !ok {
		return
	}

	record, err := h.packages.Upgrade(c.Request.Context(), id, actorID(c), fileName, data)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, record)
}

type deployRequest struct {
	Scope     string `json:"scope" binding:"required"`
	SiteURL   string `json:"site_url"`
	TrackSite bool   `json:"track_site"`
}

func parseScope(raw string) (catalog.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tenant":
		return catalog.ScopeTenant, nil
	case "site":
		return catalog.ScopeSite, nil
	default:
		return "", errors.New("scope must be 'site' or 'tenant'")
	}
}

// POST /api/apps/:id/deploy
func (h *AppHandler) Deploy(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}
	var req deployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_scope", err)
		return
	}
	if scope == catalog.ScopeSite && strings.TrimSpace(req.SiteURL) == "" {
		RespondError(c, http.StatusBadRequest, "missing_site_url", errors.New("site scope requires site_url"))
		return
	}

	record, err := h.deploys.Deploy(c.Request.Context(), id, services.DeployOptions{
		Scope:     scope,
		SiteURL:   strings.TrimSpace(req.SiteURL),
		TrackSite: req.TrackSite,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, record)
}

type retractRequest struct {
	Scope   string `json:"scope" binding:"required"`
	SiteURL string `json:"site_url"`
	Remove  bool   `json:"remove"`
}

// POST /api/apps/:id/retract
func (h *AppHandler) Retract(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}
	var req retractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_scope", err)
		return
	}

	if err := h.deploys.RetractAndRemove(c.Request.Context(), id, scope, strings.TrimSpace(req.SiteURL), req.Remove); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"retracted": true})
}

// POST /api/apps/:id/install-test-site
func (h *AppHandler) InstallTestSite(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}

	siteURL, err := h.deploys.InstallToNewTestSite(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"test_site_url": siteURL})
}

// POST /api/apps/:id/sync-hub
func (h *AppHandler) SyncHub(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}

	if err := h.deploys.SyncToCollaborationHub(c.Request.Context(), id); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"synced": true})
}

type statusRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

// POST /api/apps/:id/status
func (h *AppHandler) ChangeStatus(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	actor := actorID(c)
	ctx := c.Request.Context()

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "advance":
		record, err := h.packages.Advance(ctx, id, actor)
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, record)
	case "reject":
		record, err := h.packages.Reject(ctx, id, actor, req.Reason)
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, record)
	case "resubmit":
		record, err := h.packages.Resubmit(ctx, id, actor)
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, record)
	default:
		RespondError(c, http.StatusBadRequest, "bad_action", errors.New("action must be advance, reject or resubmit"))
	}
}

// GET /api/apps
func (h *AppHandler) List(c *gin.Context) {
	records, err := h.registry.ListApps(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, records)
}

// GET /api/apps/:id
func (h *AppHandler) Get(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}
	record, err := h.registry.GetApp(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, record)
}

// GET /api/apps/:id/audit
func (h *AppHandler) AuditTrail(c *gin.Context) {
	id, ok := h.appID(c)
	if !ok {
		return
	}
	record, err := h.registry.GetApp(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	entries, err := h.audit.History(c.Request.Context(), record.ProductID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, entries)
}
