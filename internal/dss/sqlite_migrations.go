package dss

import (
	"context"
	"database/sql"
	"fmt"
)

const sqliteSchemaVersion = 1

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_ns INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	var cur sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations;`).Scan(&cur); err != nil {
		return err
	}
	for v := int(cur.Int64) + 1; v <= sqliteSchemaVersion; v++ {
		if err := s.applyMigration(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	switch version {
	case 1:
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS device (
  family     TEXT NOT NULL,
  library    TEXT NOT NULL,
  serial     TEXT NOT NULL,
  host       TEXT NOT NULL,
  model      TEXT NOT NULL DEFAULT '',
  path       TEXT NOT NULL DEFAULT '',
  adm_status TEXT NOT NULL DEFAULT 'unlocked',
  PRIMARY KEY (family, library, serial)
);

CREATE TABLE IF NOT EXISTS media (
  family     TEXT NOT NULL,
  library    TEXT NOT NULL,
  name       TEXT NOT NULL,
  model      TEXT NOT NULL DEFAULT '',
  adm_status TEXT NOT NULL DEFAULT 'unlocked',
  put        INTEGER NOT NULL DEFAULT 1,
  get        INTEGER NOT NULL DEFAULT 1,
  del        INTEGER NOT NULL DEFAULT 1,
  PRIMARY KEY (family, library, name)
);

CREATE TABLE IF NOT EXISTS media_lock (
  family   TEXT NOT NULL,
  library  TEXT NOT NULL,
  name     TEXT NOT NULL,
  hostname TEXT NOT NULL,
  owner    INTEGER NOT NULL,
  ts_ns    INTEGER NOT NULL,
  PRIMARY KEY (family, library, name)
);

CREATE INDEX IF NOT EXISTS idx_device_family_host ON device(family, host);
CREATE INDEX IF NOT EXISTS idx_media_lock_host ON media_lock(hostname);
`); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at_ns) VALUES(?, ?);`,
		version, s.now().UnixNano()); err != nil {
		return err
	}
	return tx.Commit()
}
