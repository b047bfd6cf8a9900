package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
recognition:
  base_url: http://ai.internal:8000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Recognition.Timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", cfg.Recognition.Timeout)
	}
	if cfg.Recognition.InsecureSkipVerify {
		t.Error("insecure_skip_verify must default to false")
	}
	if cfg.Recognition.VectorDim != 512 {
		t.Errorf("vector_dim = %d, want 512", cfg.Recognition.VectorDim)
	}
	if cfg.Storage.Backend != StorageFilesystem {
		t.Errorf("storage backend = %q, want filesystem", cfg.Storage.Backend)
	}
	if cfg.Defaults.WarningDelaySeconds != 10 {
		t.Errorf("warning delay = %d, want 10", cfg.Defaults.WarningDelaySeconds)
	}
	if len(cfg.Defaults.RequiredEquipment) != 2 {
		t.Errorf("required equipment = %v, want two defaults", cfg.Defaults.RequiredEquipment)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
recognition:
  base_url: http://ai.internal:8000
`)
	t.Setenv("SAFETY_SERVER_PORT", "9100")
	t.Setenv("SAFETY_RECOGNITION_TIMEOUT", "2s")
	t.Setenv("SAFETY_RECOGNITION_INSECURE", "true")
	t.Setenv("SAFETY_ALLOWED_ORIGINS", "http://a.local, http://b.local,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Recognition.Timeout != 2*time.Second {
		t.Errorf("timeout = %s, want 2s", cfg.Recognition.Timeout)
	}
	if !cfg.Recognition.InsecureSkipVerify {
		t.Error("expected insecure override to apply")
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("allowed origins = %v, want 2 entries", cfg.Server.AllowedOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing backend url", "server:\n  port: 8080\n"},
		{"unknown storage", "recognition:\n  base_url: http://x\nstorage:\n  backend: ftp\n"},
		{"minio without bucket", "recognition:\n  base_url: http://x\nstorage:\n  backend: minio\nminio:\n  endpoint: localhost:9000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
