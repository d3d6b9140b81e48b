package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Sync.CutoffDays != 30 || cfg.Sync.FetchConcurrency != 5 || cfg.Mail.TimeoutSeconds != 45 {
		t.Errorf("defaults = %+v / %+v", cfg.Sync, cfg.Mail)
	}
	if cfg.Encryption.Key != "k" || cfg.JWT.Secret != "s" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigFileAndClamp(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	t.Setenv("JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[encryption]
key = "file-key"

[jwt]
secret = "file-secret"

[storage]
driver = "sqlite"
path = "/tmp/x"

[sync]
fetch_concurrency = 50
cutoff_days = 7

[mail]
timeout_seconds = 1
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Sync.FetchConcurrency != 10 {
		t.Errorf("FetchConcurrency = %d, want clamped 10", cfg.Sync.FetchConcurrency)
	}
	if cfg.Mail.TimeoutSeconds != 5 {
		t.Errorf("TimeoutSeconds = %d, want clamped 5", cfg.Mail.TimeoutSeconds)
	}
	if cfg.Sync.CutoffDays != 7 || cfg.Storage.Driver != "sqlite" {
		t.Errorf("file values not applied: %+v %+v", cfg.Sync, cfg.Storage)
	}
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() without encryption key = nil, want error")
	}
	cfg.Encryption.Key = "k"
	cfg.JWT.Secret = "s"
	cfg.Storage.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with unknown driver = nil, want error")
	}
}
