package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cea-hpc/phobos/internal/compat"
	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/testutil"
)

func TestLoad(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	content := `
hostname: "io-node-1"
log_level: debug
dss:
  backend: etcd
  etcd:
    endpoints: ["http://etcd-1:2379", "http://etcd-2:2379"]
    prefix: /phobos-test
    lock_ttl: 1m
compat:
  tape_types:
    LTO6: [LTO6_drive]
  drive_types:
    LTO6_drive: [ULT3580-TD6]
metrics:
  textfile: /var/lib/node_exporter/phobos.prom
`
	configPath := testutil.TempFile(t, dir, "phobos.yaml", content)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "io-node-1", cfg.Hostname)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendEtcd, cfg.DSS.Backend)
	assert.Equal(t, []string{"http://etcd-1:2379", "http://etcd-2:2379"}, cfg.DSS.Etcd.Endpoints)
	assert.Equal(t, "/phobos-test", cfg.DSS.Etcd.Prefix)
	assert.Equal(t, "1m", cfg.DSS.Etcd.LockTTL)
	assert.Equal(t, "5s", cfg.DSS.Etcd.DialTimeout)
	assert.Equal(t, []string{"LTO6_drive"}, cfg.Compat.TapeTypes["LTO6"])
	assert.NotContains(t, cfg.Compat.TapeTypes, "LTO7")
	assert.Equal(t, "/var/lib/node_exporter/phobos.prom", cfg.Metrics.Textfile)
}

func TestLoad_Defaults(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	configPath := testutil.TempFile(t, dir, "phobos.yaml", "hostname: h1\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendSQLite, cfg.DSS.Backend)
	assert.Equal(t, "/var/lib/phobos/dss.db", cfg.DSS.SQLite.Path)
	assert.Equal(t, "5s", cfg.DSS.SQLite.BusyTimeout)
	assert.Equal(t, "/phobos", cfg.DSS.Etcd.Prefix)
	assert.Equal(t, compat.DefaultRules(), cfg.Compat)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoad_ExpandsHome(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	content := `
dss:
  sqlite:
    path: ~/.phobos/dss.db
`
	cfg, err := Load(testutil.TempFile(t, dir, "phobos.yaml", content))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, ".phobos/dss.db"), cfg.DSS.SQLite.Path)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/phobos.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	configPath := testutil.TempFile(t, dir, "phobos.yaml", "dss: [invalid yaml\n")

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"memory backend", func(c *Config) { c.DSS.Backend = BackendMemory }, ""},
		{"unknown backend", func(c *Config) { c.DSS.Backend = "postgres" }, "unknown dss.backend"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log_level"},
		{"empty sqlite path", func(c *Config) { c.DSS.SQLite.Path = "" }, "dss.sqlite.path is required"},
		{"bad busy timeout", func(c *Config) { c.DSS.SQLite.BusyTimeout = "soon" }, "busy_timeout"},
		{"etcd without endpoints", func(c *Config) { c.DSS.Backend = BackendEtcd }, "dss.etcd.endpoints is required"},
		{
			"negative lock ttl",
			func(c *Config) {
				c.DSS.Backend = BackendEtcd
				c.DSS.Etcd.Endpoints = []string{"http://localhost:2379"}
				c.DSS.Etcd.LockTTL = "-1s"
			},
			"lock_ttl",
		},
		{
			"dangling drive type",
			func(c *Config) { c.Compat.TapeTypes["LTO6"] = []string{"LTO6_drive", "LTO10_drive"} },
			"invalid compat rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSelfHost(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "io-node-7"

	host, err := cfg.SelfHost()
	require.NoError(t, err)
	assert.Equal(t, "io-node-7", host)

	cfg.Hostname = ""
	host, err = cfg.SelfHost()
	if err != nil {
		assert.ErrorIs(t, err, ErrNoHostname)
		return
	}
	assert.NotEmpty(t, host)
	assert.NotContains(t, host, ".")
}

func TestOpenBackend(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := Default()
		cfg.DSS.Backend = BackendMemory

		b, err := cfg.OpenBackend(ctx, testutil.Logger(t))
		require.NoError(t, err)
		defer func() { _ = b.Close() }()
		assert.IsType(t, &dss.MemoryStore{}, b)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := Default()
		cfg.DSS.SQLite.Path = filepath.Join(dir, "dss.db")

		b, err := cfg.OpenBackend(ctx, testutil.Logger(t))
		require.NoError(t, err)
		defer func() { _ = b.Close() }()
		assert.IsType(t, &dss.SQLiteStore{}, b)
		assert.FileExists(t, cfg.DSS.SQLite.Path)
	})
}
