package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
server:
  host: "127.0.0.1"
  port: 9090

feed:
  refresh_interval: 15s
  cycle_deadline: 10s

providers:
  - name: coincap
  - name: binance

assets:
  - bitcoin
  - ethereum
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Feed.RefreshInterval != 15*time.Second {
		t.Errorf("expected 15s refresh interval, got %s", cfg.Feed.RefreshInterval)
	}
	// Priority is order of appearance
	if cfg.Providers[0].Name != "coincap" || cfg.Providers[1].Name != "binance" {
		t.Errorf("provider order not preserved: %+v", cfg.Providers)
	}
	// Unset fields keep defaults
	if cfg.Feed.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold 3, got %d", cfg.Feed.FailureThreshold)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Feed.RefreshInterval != 30*time.Second {
		t.Errorf("expected default refresh interval 30s, got %s", cfg.Feed.RefreshInterval)
	}
	if len(cfg.Providers) != 3 || cfg.Providers[0].Name != "binance" {
		t.Errorf("unexpected default providers: %+v", cfg.Providers)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"zero interval", func(c *Config) { c.Feed.RefreshInterval = 0 }, true},
		{"deadline exceeds interval", func(c *Config) { c.Feed.CycleDeadline = time.Minute }, true},
		{"zero threshold", func(c *Config) { c.Feed.FailureThreshold = 0 }, true},
		{"no providers", func(c *Config) { c.Providers = nil }, true},
		{"duplicate provider", func(c *Config) {
			c.Providers = append(c.Providers, ProviderConfig{Name: "binance"})
		}, true},
		{"empty provider name", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: ""}}
		}, true},
		{"no assets", func(c *Config) { c.Assets = nil }, true},
		{"archive localfs without path", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Type = "localfs"
		}, true},
		{"archive s3 without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Type = "s3"
		}, true},
		{"archive unknown type", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Type = "redis"
		}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("FEEDD_TEST_KEY", "secret-from-env")

	content := []byte(`
server:
  api_key: "${FEEDD_TEST_KEY}"
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.APIKey != "secret-from-env" {
		t.Errorf("expected env expansion, got %q", cfg.Server.APIKey)
	}
}
