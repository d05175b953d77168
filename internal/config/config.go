// Package config loads the YAML application configuration and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	DefaultListenAddr       = ":8317"
	DefaultDSN              = "subsidy-engine.db"
	DefaultCacheRefreshSpec = "@every 5m"
	DefaultLogLevel         = "info"
	DefaultTokenTTL         = 12 * time.Hour
)

// AppConfig carries process-level flags from the command line.
type AppConfig struct {
	ConfigPath string
}

// Duration wraps time.Duration so YAML values like "5m" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the parsed application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen-addr"`
}

// DatabaseConfig controls the database connection. DSN accepts a
// postgres:// URL or a SQLite file path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig controls admin authentication.
type AuthConfig struct {
	// JWTSecret signs admin session tokens.
	JWTSecret string `yaml:"jwt-secret"`
	// AdminUsername is the single admin login name.
	AdminUsername string `yaml:"admin-username"`
	// AdminPasswordHash is the bcrypt hash of the admin password.
	AdminPasswordHash string `yaml:"admin-password-hash"`
	// TokenTTL bounds session token lifetime.
	TokenTTL Duration `yaml:"token-ttl"`
}

// CacheConfig controls the in-memory rule cache.
type CacheConfig struct {
	// Enabled selects the memory cache; false runs uncached.
	Enabled bool `yaml:"enabled"`
	// TTL bounds rule-list staleness; zero selects the default.
	TTL Duration `yaml:"ttl"`
	// RefreshSpec is the cron spec for periodic cache refresh.
	RefreshSpec string `yaml:"refresh-spec"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is a logrus level name.
	Level string `yaml:"level"`
	// File enables rotated file output when set; empty logs to stderr.
	File string `yaml:"file"`
	// MaxSizeMB rotates the log file past this size.
	MaxSizeMB int `yaml:"max-size-mb"`
	// MaxBackups bounds the number of rotated files kept.
	MaxBackups int `yaml:"max-backups"`
}

// ResolveConfigPath returns the effective config path, falling back to
// config.yaml in the working directory.
func ResolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return "config.yaml"
}

// Load reads and parses the config file, fills defaults, and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if errParse := yaml.Unmarshal(data, cfg); errParse != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errParse)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Database.DSN == "" {
		c.Database.DSN = DefaultDSN
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = Duration(DefaultTokenTTL)
	}
	if c.Cache.RefreshSpec == "" {
		c.Cache.RefreshSpec = DefaultCacheRefreshSpec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Environment overrides let deployments keep secrets out of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SUBSIDY_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SUBSIDY_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("SUBSIDY_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}
