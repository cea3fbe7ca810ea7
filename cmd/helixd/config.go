package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the helixd configuration, loaded from YAML with environment
// overrides for deployment-sensitive values.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		// Level is one of debug, info, warn, error.
		Level string `yaml:"level"`
		// Format is "text" or "json".
		Format string `yaml:"format"`
	} `yaml:"log"`

	Storage struct {
		// Backend is "memory" or "valkey".
		Backend string `yaml:"backend"`
		Valkey  struct {
			Address   string `yaml:"address"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"valkey"`
	} `yaml:"storage"`

	Tokens struct {
		CodeTTL   time.Duration `yaml:"code_ttl"`
		AccessTTL time.Duration `yaml:"access_ttl"`
	} `yaml:"tokens"`

	Rate struct {
		Enabled           bool `yaml:"enabled"`
		RequestsPerSecond int  `yaml:"requests_per_second"`
		Burst             int  `yaml:"burst"`
	} `yaml:"rate"`

	Audit struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"audit"`

	Telemetry struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"telemetry"`

	// Clients are seeded into storage at startup. Secrets are hashed before
	// they are stored; plaintext never leaves this struct.
	Clients []SeedClient `yaml:"clients"`
}

// SeedClient is a client registration from the config file.
type SeedClient struct {
	ID          string `yaml:"id"`
	Secret      string `yaml:"secret"`
	RedirectURI string `yaml:"redirect_uri"`
	Scope       string `yaml:"scope"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Storage.Backend = "memory"
	cfg.Storage.Valkey.Address = "localhost:6379"
	cfg.Tokens.CodeTTL = 60 * time.Second
	cfg.Tokens.AccessTTL = time.Hour
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerSecond = 10
	cfg.Rate.Burst = 20
	cfg.Audit.Enabled = true
	return cfg
}

// LoadConfig reads the YAML file at path (when non-empty), applies
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers HELIX_* environment variables over the file values, so
// secrets can stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("HELIX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HELIX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HELIX_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("HELIX_VALKEY_ADDRESS"); v != "" {
		c.Storage.Valkey.Address = v
	}
	if v := os.Getenv("HELIX_VALKEY_PASSWORD"); v != "" {
		c.Storage.Valkey.Password = v
	}
	if v := os.Getenv("HELIX_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.Valkey.DB = db
		}
	}
	if v := os.Getenv("HELIX_TELEMETRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Storage.Backend {
	case "memory":
	case "valkey":
		if c.Storage.Valkey.Address == "" {
			return fmt.Errorf("storage.valkey.address is required for the valkey backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want memory or valkey)", c.Storage.Backend)
	}
	if c.Tokens.CodeTTL < 0 || c.Tokens.AccessTTL < 0 {
		return fmt.Errorf("token TTLs must not be negative")
	}
	if c.Rate.Enabled && (c.Rate.RequestsPerSecond <= 0 || c.Rate.Burst <= 0) {
		return fmt.Errorf("rate.requests_per_second and rate.burst must be positive when rate limiting is enabled")
	}
	for i, client := range c.Clients {
		if client.ID == "" || client.Secret == "" {
			return fmt.Errorf("clients[%d]: id and secret are required", i)
		}
		if client.RedirectURI == "" {
			return fmt.Errorf("clients[%d]: redirect_uri is required", i)
		}
	}
	return nil
}
