package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Tokens.AccessTTL != time.Hour {
		t.Errorf("access TTL = %v, want 1h", cfg.Tokens.AccessTTL)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9090"
storage:
  backend: valkey
  valkey:
    address: valkey.internal:6379
tokens:
  code_ttl: 30s
clients:
  - id: app123
    secret: s3cr3t
    redirect_uri: https://client.example/cb
    scope: read
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Storage.Valkey.Address != "valkey.internal:6379" {
		t.Errorf("valkey address = %q", cfg.Storage.Valkey.Address)
	}
	if cfg.Tokens.CodeTTL != 30*time.Second {
		t.Errorf("code TTL = %v, want 30s", cfg.Tokens.CodeTTL)
	}
	if len(cfg.Clients) != 1 || cfg.Clients[0].ID != "app123" {
		t.Errorf("clients = %+v", cfg.Clients)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("HELIX_ADDR", ":7070")
	t.Setenv("HELIX_STORAGE_BACKEND", "valkey")
	t.Setenv("HELIX_VALKEY_ADDRESS", "override:6379")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q, want :7070", cfg.Server.Addr)
	}
	if cfg.Storage.Valkey.Address != "override:6379" {
		t.Errorf("valkey address = %q, want override:6379", cfg.Storage.Valkey.Address)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, true},
		{"valkey without address", func(c *Config) {
			c.Storage.Backend = "valkey"
			c.Storage.Valkey.Address = ""
		}, true},
		{"negative ttl", func(c *Config) { c.Tokens.CodeTTL = -time.Second }, true},
		{"rate without burst", func(c *Config) {
			c.Rate.Enabled = true
			c.Rate.Burst = 0
		}, true},
		{"client without redirect", func(c *Config) {
			c.Clients = []SeedClient{{ID: "a", Secret: "b"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
