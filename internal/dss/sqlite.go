package dss

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteConfig configures a SQLite-backed store.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
	Logger      zerolog.Logger
}

// SQLiteStore keeps inventory and locks in a single SQLite database. Lock
// atomicity comes from the media_lock primary key.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database and applies migrations.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", sqliteDSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writers serialize on the database anyway; a single connection keeps
	// busy errors out of the lock path.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: cfg.Logger.With().Str("component", "dss-sqlite").Logger(),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

// sqliteDSN builds a file: URI. The path is percent-encoded so URI
// delimiters in directory names stay part of the file name.
func sqliteDSN(path string, busyTimeout time.Duration) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		escaped, int(busyTimeout.Milliseconds()))
}

func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// PutDevice implements Admin.
func (s *SQLiteStore) PutDevice(ctx context.Context, dev Device) error {
	status := dev.AdmStatus
	if status == "" {
		status = AdmUnlocked
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO device(family, library, serial, host, model, path, adm_status)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(family, library, serial) DO UPDATE SET
  host = excluded.host,
  model = excluded.model,
  path = excluded.path,
  adm_status = excluded.adm_status;
`, dev.Family, dev.Library, dev.Serial, dev.Host, dev.Model, dev.Path, status)
	if err != nil {
		return fmt.Errorf("put device %s: %w", dev.Serial, err)
	}
	return nil
}

// PutMedium implements Admin.
func (s *SQLiteStore) PutMedium(ctx context.Context, info MediumInfo) error {
	status := info.AdmStatus
	if status == "" {
		status = AdmUnlocked
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO media(family, library, name, model, adm_status, put, get, del)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(family, library, name) DO UPDATE SET
  model = excluded.model,
  adm_status = excluded.adm_status,
  put = excluded.put,
  get = excluded.get,
  del = excluded.del;
`, info.ID.Family, info.ID.Library, info.ID.Name, info.Model, status,
		info.Flags.Put, info.Flags.Get, info.Flags.Delete)
	if err != nil {
		return fmt.Errorf("put medium %s: %w", info.ID, err)
	}
	return nil
}

// UsableDevices implements Store.
func (s *SQLiteStore) UsableDevices(ctx context.Context, family Family, host string) ([]Device, error) {
	query := `SELECT family, library, serial, host, model, path, adm_status FROM device
WHERE family = ? AND adm_status = 'unlocked'`
	args := []any{family}
	if host != "" {
		query += ` AND host = ?`
		args = append(args, host)
	}
	query += ` ORDER BY host, serial;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devs []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.Family, &d.Library, &d.Serial, &d.Host, &d.Model, &d.Path, &d.AdmStatus); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devs = append(devs, d)
	}
	return devs, rows.Err()
}

// LocateMedium implements Store.
func (s *SQLiteStore) LocateMedium(ctx context.Context, id MediumID) (string, *MediumInfo, error) {
	var (
		info     MediumInfo
		hostname sql.NullString
		owner    sql.NullInt64
		tsNs     sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT m.model, m.adm_status, m.put, m.get, m.del, l.hostname, l.owner, l.ts_ns
FROM media m
LEFT JOIN media_lock l ON l.family = m.family AND l.library = m.library AND l.name = m.name
WHERE m.family = ? AND m.library = ? AND m.name = ?;
`, id.Family, id.Library, id.Name).Scan(&info.Model, &info.AdmStatus,
		&info.Flags.Put, &info.Flags.Get, &info.Flags.Delete, &hostname, &owner, &tsNs)
	if errors.Is(err, sql.ErrNoRows) {
		return resolveLocation(nil, nil)
	}
	if err != nil {
		return "", nil, fmt.Errorf("locate medium %s: %w", id, err)
	}
	info.ID = id

	var lock *Lock
	if hostname.Valid {
		lock = &Lock{Medium: id, Host: hostname.String, Owner: int(owner.Int64), Timestamp: time.Unix(0, tsNs.Int64)}
	}
	return resolveLocation(&info, lock)
}

// Lock implements Store.
func (s *SQLiteStore) Lock(ctx context.Context, id MediumID, host string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO media_lock(family, library, name, hostname, owner, ts_ns)
VALUES(?, ?, ?, ?, ?, ?);
`, id.Family, id.Library, id.Name, host, lockOwner, s.now().UnixNano())
	if isConstraintViolation(err) {
		return ErrAlreadyLocked
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", id, err)
	}
	s.logger.Debug().Str("medium", id.String()).Str("host", host).Msg("Medium locked")
	return nil
}

// RefreshLock implements Store.
func (s *SQLiteStore) RefreshLock(ctx context.Context, id MediumID, host string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE media_lock SET ts_ns = ?, owner = ?
WHERE family = ? AND library = ? AND name = ? AND hostname = ?;
`, s.now().UnixNano(), lockOwner, id.Family, id.Library, id.Name, host)
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", id, err)
	}
	if aff, _ := res.RowsAffected(); aff == 1 {
		return nil
	}
	return s.lockMissReason(ctx, id)
}

// Unlock implements Store.
func (s *SQLiteStore) Unlock(ctx context.Context, id MediumID, host string) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM media_lock WHERE family = ? AND library = ? AND name = ? AND hostname = ?;
`, id.Family, id.Library, id.Name, host)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", id, err)
	}
	if aff, _ := res.RowsAffected(); aff == 1 {
		return nil
	}
	return s.lockMissReason(ctx, id)
}

// lockMissReason tells apart a missing lock from one held by another host
// after a host-scoped update matched nothing.
func (s *SQLiteStore) lockMissReason(ctx context.Context, id MediumID) error {
	var holder string
	err := s.db.QueryRowContext(ctx, `
SELECT hostname FROM media_lock WHERE family = ? AND library = ? AND name = ?;
`, id.Family, id.Library, id.Name).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLockNotFound
	}
	if err != nil {
		return fmt.Errorf("read lock %s: %w", id, err)
	}
	return ErrLockOwnedByOther
}

// ListLocks implements Admin.
func (s *SQLiteStore) ListLocks(ctx context.Context) ([]Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT family, library, name, hostname, owner, ts_ns FROM media_lock
ORDER BY family, library, name;
`)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var locks []Lock
	for rows.Next() {
		var (
			l    Lock
			tsNs int64
		)
		if err := rows.Scan(&l.Medium.Family, &l.Medium.Library, &l.Medium.Name, &l.Host, &l.Owner, &tsNs); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		l.Timestamp = time.Unix(0, tsNs)
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// Close implements Backend.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
