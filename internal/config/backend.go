package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cea-hpc/phobos/internal/dss"
)

// OpenBackend connects to the configured state store. Validate must have
// succeeded first.
func (c *Config) OpenBackend(ctx context.Context, logger zerolog.Logger) (dss.Backend, error) {
	switch c.DSS.Backend {
	case BackendSQLite:
		busy, _ := parseDuration(c.DSS.SQLite.BusyTimeout)
		store, err := dss.OpenSQLite(ctx, dss.SQLiteConfig{
			Path:        c.DSS.SQLite.Path,
			BusyTimeout: busy,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendEtcd:
		dial, _ := parseDuration(c.DSS.Etcd.DialTimeout)
		ttl, _ := parseDuration(c.DSS.Etcd.LockTTL)
		store, err := dss.OpenEtcd(dss.EtcdConfig{
			Endpoints:   c.DSS.Etcd.Endpoints,
			Prefix:      c.DSS.Etcd.Prefix,
			DialTimeout: dial,
			LockTTL:     ttl,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return dss.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown dss.backend %q", c.DSS.Backend)
	}
}
