package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNotifyConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notify.yaml")
	content := `
flow_ids:
  new_app: flow-new-123
  upgrade_app: flow-upg-456
email_from_address: apphub@contoso.example
email_from_name: AppHub
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadNotifyConfig(path)
	if err != nil {
		t.Fatalf("LoadNotifyConfig: %v", err)
	}
	if cfg.FlowIDs.NewApp != "flow-new-123" || cfg.FlowIDs.UpgradeApp != "flow-upg-456" {
		t.Errorf("flow ids=%+v", cfg.FlowIDs)
	}
	if cfg.EmailFromAddress != "apphub@contoso.example" || cfg.EmailFromName != "AppHub" {
		t.Errorf("email from=%q %q", cfg.EmailFromAddress, cfg.EmailFromName)
	}
}

func TestLoadNotifyConfigEmptyPath(t *testing.T) {
	cfg, err := LoadNotifyConfig("")
	if err != nil {
		t.Fatalf("LoadNotifyConfig: %v", err)
	}
	if cfg.FlowIDs.NewApp != "" {
		t.Errorf("cfg=%+v, want zero value", cfg)
	}
}

func TestLoadNotifyConfigMissingFile(t *testing.T) {
	if _, err := LoadNotifyConfig("/nonexistent/notify.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
