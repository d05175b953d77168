package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Fatalf("listen = %s, want default", cfg.Server.ListenAddr)
	}
	if cfg.Database.DSN != DefaultDSN {
		t.Fatalf("dsn = %s, want default", cfg.Database.DSN)
	}
	if cfg.Cache.RefreshSpec != DefaultCacheRefreshSpec {
		t.Fatalf("refresh spec = %s, want default", cfg.Cache.RefreshSpec)
	}
	if cfg.Auth.TokenTTL.Std() != DefaultTokenTTL {
		t.Fatalf("token ttl = %v, want default", cfg.Auth.TokenTTL)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  listen-addr: ":9000"
database:
  dsn: "postgres://localhost/subsidy"
cache:
  enabled: true
  ttl: 2m
logging:
  level: debug
`
	if errWrite := os.WriteFile(path, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Fatalf("listen = %s", cfg.Server.ListenAddr)
	}
	if cfg.Database.DSN != "postgres://localhost/subsidy" {
		t.Fatalf("dsn = %s", cfg.Database.DSN)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL.Std() != 2*time.Minute {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %s", cfg.Logging.Level)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte("server: ["), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUBSIDY_DSN", "env.db")
	t.Setenv("SUBSIDY_LISTEN_ADDR", ":7000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "env.db" {
		t.Fatalf("dsn = %s, want env override", cfg.Database.DSN)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Fatalf("listen = %s, want env override", cfg.Server.ListenAddr)
	}
}
