package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/appdock/apphub-backend/internal/platform/logger"
)

// TokenProvider hands out a bearer token for the host behind
// resourceURL. Implementations acquire a fresh token per call; the
// catalog client never caches credentials between operations.
type TokenProvider interface {
	Acquire(ctx context.Context, resourceURL string) (string, error)
}

type aadConfig struct {
	tenantID     string
	clientID     string
	clientSecret string
	loginBaseURL string
}

type aadTokenProvider struct {
	log        *logger.Logger
	cfg        aadConfig
	httpClient *http.Client
}

// NewAADTokenProvider builds a client-credentials provider from
// SP_TENANT_ID / SP_CLIENT_ID / SP_CLIENT_SECRET. SP_LOGIN_BASE_URL
// overrides the login authority, which the tests point at a local
// server.
func NewAADTokenProvider(log *logger.Logger) (TokenProvider, error) {
	cfg := aadConfig{
		tenantID:     strings.TrimSpace(os.Getenv("SP_TENANT_ID")),
		clientID:     strings.TrimSpace(os.Getenv("SP_CLIENT_ID")),
		clientSecret: strings.TrimSpace(os.Getenv("SP_CLIENT_SECRET")),
		loginBaseURL: strings.TrimSpace(os.Getenv("SP_LOGIN_BASE_URL")),
	}
	if cfg.tenantID == "" || cfg.clientID == "" || cfg.clientSecret == "" {
		return nil, fmt.Errorf("missing SP_TENANT_ID, SP_CLIENT_ID or SP_CLIENT_SECRET")
	}
	if cfg.loginBaseURL == "" {
		cfg.loginBaseURL = "https://login.microsoftonline.com"
	}
	cfg.loginBaseURL = strings.TrimRight(cfg.loginBaseURL, "/")

	return &aadTokenProvider{
		log:        log.With("client", "AADTokenProvider"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *aadTokenProvider) Acquire(ctx context.Context, resourceURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(resourceURL))
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid resource url %q", resourceURL)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.clientID)
	form.Set("client_secret", p.cfg.clientSecret)
	form.Set("scope", fmt.Sprintf("%s://%s/.default", parsed.Scheme, parsed.Host))

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.cfg.loginBaseURL, p.cfg.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RemoteError{Op: "AcquireToken", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return payload.AccessToken, nil
}

// StaticTokenProvider returns the same token for every resource. Used
// in tests and local development against emulated catalogs.
type StaticTokenProvider string

func (s StaticTokenProvider) Acquire(context.Context, string) (string, error) {
	return string(s), nil
}
