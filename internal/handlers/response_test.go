package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/appdock/apphub-backend/internal/catalog"
	"github.com/appdock/apphub-backend/internal/manifest"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/services"
	"github.com/appdock/apphub-backend/internal/version"
)

func respond(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondServiceError(c, err)
	return w
}

func TestRespondServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not_found", err: repos.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "duplicate_product", err: services.ErrDuplicateProduct, wantStatus: http.StatusConflict},
		{name: "incomplete_descriptor", err: services.ErrIncompleteDescriptor, wantStatus: http.StatusUnprocessableEntity},
		{name: "malformed_package", err: manifest.ErrMalformedPackage, wantStatus: http.StatusUnprocessableEntity},
		{name: "product_mismatch", err: version.ErrProductMismatch, wantStatus: http.StatusUnprocessableEntity},
		{name: "version_not_greater", err: version.ErrVersionNotGreater, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid_transition", err: services.ErrNoForwardTransition, wantStatus: http.StatusConflict},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := respond(t, tc.err)
			if w.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRemoteFailuresStayGeneric(t *testing.T) {
	remote := &catalog.RemoteError{Op: "Deploy", StatusCode: 500, Body: "internal catalog stack trace"}
	w := respond(t, &services.StepError{Op: "Deploy", Step: "deploy", Err: remote})

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d, want 502", w.Code)
	}
	if strings.Contains(w.Body.String(), "stack trace") {
		t.Errorf("body=%q, upstream error bodies must not leak", w.Body.String())
	}
}

func TestParseScope(t *testing.T) {
	if s, err := parseScope(" Tenant "); err != nil || s != catalog.ScopeTenant {
		t.Errorf("parseScope(Tenant)=%v,%v", s, err)
	}
	if s, err := parseScope("site"); err != nil || s != catalog.ScopeSite {
		t.Errorf("parseScope(site)=%v,%v", s, err)
	}
	if _, err := parseScope("global"); err == nil {
		t.Error("parseScope(global) should fail")
	}
}
