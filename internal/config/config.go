// Package config handles configuration loading and validation for phobos.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cea-hpc/phobos/internal/compat"
)

// DSS backends.
const (
	BackendSQLite = "sqlite"
	BackendEtcd   = "etcd"
	BackendMemory = "memory"
)

// ErrNoHostname is returned when no host name is configured and the local one
// cannot be read.
var ErrNoHostname = errors.New("no host name")

// SQLiteConfig holds configuration for the SQLite state store.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"` // Duration string, e.g. "5s"
}

// EtcdConfig holds configuration for the etcd state store.
type EtcdConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	Prefix      string   `yaml:"prefix"`
	DialTimeout string   `yaml:"dial_timeout"`
	LockTTL     string   `yaml:"lock_ttl"` // empty keeps locks until released
}

// DSSConfig selects and configures the distributed state store.
type DSSConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Etcd    EtcdConfig   `yaml:"etcd"`
}

// MetricsConfig holds configuration for metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node exporter textfile, disabled if empty
}

// Config is the phobos configuration file.
type Config struct {
	Hostname string        `yaml:"hostname"` // overrides the local node name
	LogLevel string        `yaml:"log_level"`
	DSS      DSSConfig     `yaml:"dss"`
	Compat   compat.Rules  `yaml:"compat"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DSS.Backend == "" {
		c.DSS.Backend = BackendSQLite
	}
	if c.DSS.SQLite.Path == "" {
		c.DSS.SQLite.Path = "/var/lib/phobos/dss.db"
	}
	if c.DSS.SQLite.BusyTimeout == "" {
		c.DSS.SQLite.BusyTimeout = "5s"
	}
	if c.DSS.Etcd.Prefix == "" {
		c.DSS.Etcd.Prefix = "/phobos"
	}
	if c.DSS.Etcd.DialTimeout == "" {
		c.DSS.Etcd.DialTimeout = "5s"
	}
	// A file that sets neither table keeps the LTO defaults
	if len(c.Compat.TapeTypes) == 0 && len(c.Compat.DriveTypes) == 0 {
		c.Compat = compat.DefaultRules()
	}

	c.DSS.SQLite.Path = expandHome(c.DSS.SQLite.Path)
	c.Metrics.Textfile = expandHome(c.Metrics.Textfile)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	switch c.DSS.Backend {
	case BackendSQLite:
		if c.DSS.SQLite.Path == "" {
			return fmt.Errorf("dss.sqlite.path is required")
		}
		if _, err := parseDuration(c.DSS.SQLite.BusyTimeout); err != nil {
			return fmt.Errorf("invalid dss.sqlite.busy_timeout: %w", err)
		}
	case BackendEtcd:
		if len(c.DSS.Etcd.Endpoints) == 0 {
			return fmt.Errorf("dss.etcd.endpoints is required")
		}
		if _, err := parseDuration(c.DSS.Etcd.DialTimeout); err != nil {
			return fmt.Errorf("invalid dss.etcd.dial_timeout: %w", err)
		}
		if _, err := parseDuration(c.DSS.Etcd.LockTTL); err != nil {
			return fmt.Errorf("invalid dss.etcd.lock_ttl: %w", err)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown dss.backend %q", c.DSS.Backend)
	}

	if _, err := compat.NewOracle(c.Compat, zerolog.Nop()); err != nil {
		return fmt.Errorf("invalid compat rules: %w", err)
	}
	return nil
}

// parseDuration parses a duration string; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// SelfHost returns the name this host is known by in the state store: the
// configured hostname, else the local node name up to its first dot.
func (c *Config) SelfHost() (string, error) {
	if c.Hostname != "" {
		return c.Hostname, nil
	}
	name, err := nodeName()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHostname, err)
	}
	name, _, _ = strings.Cut(name, ".")
	if name == "" {
		return "", ErrNoHostname
	}
	return name, nil
}
