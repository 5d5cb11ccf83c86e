package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultRunConfigIsValid(t *testing.T) {
	cfg := DefaultRunConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.PropagationDelay.Std() != 60*time.Second {
		t.Errorf("PropagationDelay = %v", cfg.PropagationDelay)
	}
	if len(cfg.Subfolders) != 5 {
		t.Errorf("Subfolders = %v", cfg.Subfolders)
	}
}

func TestLoadRunConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envforge.yaml")
	content := `sharepoint_site_url: https://example.sharepoint.com/sites/test
subfolders: [inbox, archive]
initial_subfolder: inbox
propagation_delay: 5s
checkpoint_path: state.json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRunConfig(path)
	if err != nil {
		t.Fatalf("LoadRunConfig failed: %v", err)
	}
	if cfg.SiteURL != "https://example.sharepoint.com/sites/test" {
		t.Errorf("SiteURL = %q", cfg.SiteURL)
	}
	if cfg.PropagationDelay.Std() != 5*time.Second {
		t.Errorf("PropagationDelay = %v", cfg.PropagationDelay.Std())
	}
	if cfg.CheckpointPath != "state.json" {
		t.Errorf("CheckpointPath = %q", cfg.CheckpointPath)
	}
	// Untouched fields keep their defaults.
	if cfg.HelpFolder != "_AYUDA_PM" {
		t.Errorf("HelpFolder = %q", cfg.HelpFolder)
	}
}

func TestValidateRejectsForeignInitialSubfolder(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.InitialSubfolder = "99_NOPE"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for initial_subfolder outside subfolders")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("AZURE_TENANT_ID", "tenant-1")
	t.Setenv("AZURE_CLIENT_ID", "client-1")
	t.Setenv("AZURE_CLIENT_SECRET", "secret-1")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.TenantID != "tenant-1" || creds.ClientID != "client-1" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestLoadCredentialsMissing(t *testing.T) {
	t.Setenv("AZURE_TENANT_ID", "")
	t.Setenv("AZURE_CLIENT_ID", "")
	t.Setenv("AZURE_CLIENT_SECRET", "")
	if _, err := LoadCredentials(); err == nil {
		t.Error("expected error when credentials are unset")
	}
}
