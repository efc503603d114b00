package app

import (
	"strings"
	"time"

	"github.com/appdock/apphub-backend/internal/platform/envutil"
	"github.com/appdock/apphub-backend/internal/services"
)

type Config struct {
	Port             string
	CORSOrigins      []string
	RegistryTTL      time.Duration
	NotifyConfigPath string
	Notify           services.NotifyConfig
	Deployment       services.DeploymentConfig
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Port:             envutil.String("PORT", "8080"),
		RegistryTTL:      time.Duration(envutil.Int("REGISTRY_TTL_SECONDS", 15)) * time.Second,
		NotifyConfigPath: envutil.String("NOTIFY_CONFIG_PATH", ""),
		Deployment: services.DeploymentConfig{
			TenantCatalogURL:   envutil.String("TENANT_CATALOG_URL", ""),
			TestSiteParentURL:  envutil.String("TEST_SITE_PARENT_URL", ""),
			TestSiteTemplateID: envutil.String("TEST_SITE_TEMPLATE_ID", "STS#3"),
		},
	}
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitCSV(origins)
	}

	notify, err := services.LoadNotifyConfig(cfg.NotifyConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg.Notify = notify
	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
