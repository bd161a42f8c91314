package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hb-go/internal/database/migrations"
	"hb-go/internal/hb"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCatalog implements the hb.Catalog interface using SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens the catalog at path and brings its schema up to
// date. path can be a file path or ":memory:" for an in-memory catalog.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}

	return &SQLiteCatalog{db: db, path: path}, nil
}

// NewSQLiteCatalogFromDB wraps an existing database connection.
// The caller is responsible for ensuring the schema has been applied.
func NewSQLiteCatalogFromDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// OpenConnection opens and configures a SQLite database connection.
// The pool is limited to one connection: the catalog is written by a single
// process, and ":memory:" databases exist per connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const backupColumns = `id, server_version, status, start_wal_file, start_wal_offset,
	stop_wal_file, stop_wal_offset, directory, error, started_at, finished_at`

func (s *SQLiteCatalog) CreateBackup(b *hb.Backup) error {
	if b.ID == "" {
		return fmt.Errorf("backup id is required")
	}
	status := b.Status
	if status == "" {
		status = hb.StatusRunning
	}

	_, err := s.db.Exec(`INSERT INTO backups (id, server_version, status, started_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.ServerVersion, status, b.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) MarkStarted(id string, start *hb.StartRecord, directory string) error {
	return s.update(id, `UPDATE backups SET start_wal_file = ?, start_wal_offset = ?, directory = ?
		WHERE id = ? AND status = 'running'`,
		start.FileName, start.FileOffset, directory, id)
}

func (s *SQLiteCatalog) CompleteBackup(id string, stop *hb.StopRecord, finishedAt time.Time) error {
	return s.update(id, `UPDATE backups SET status = 'complete', stop_wal_file = ?, stop_wal_offset = ?, finished_at = ?
		WHERE id = ? AND status = 'running'`,
		stop.FileName, stop.FileOffset, finishedAt.UTC(), id)
}

func (s *SQLiteCatalog) FailBackup(id string, reason string, finishedAt time.Time) error {
	return s.update(id, `UPDATE backups SET status = 'failed', error = ?, finished_at = ?
		WHERE id = ? AND status = 'running'`,
		reason, finishedAt.UTC(), id)
}

// update runs a statement that must change exactly one running backup.
func (s *SQLiteCatalog) update(id string, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating backup %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating backup %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("no running backup with id %s", id)
	}
	return nil
}

func (s *SQLiteCatalog) FindBackup(id string) (*hb.Backup, error) {
	row := s.db.QueryRow(`SELECT `+backupColumns+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding backup: %w", err)
	}
	return b, nil
}

func (s *SQLiteCatalog) ListBackups(limit int) ([]*hb.Backup, error) {
	rows, err := s.db.Query(`SELECT `+backupColumns+` FROM backups ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	defer rows.Close()

	var result []*hb.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("reading backup: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBackup(row scanner) (*hb.Backup, error) {
	var b hb.Backup
	err := row.Scan(
		&b.ID,
		&b.ServerVersion,
		&b.Status,
		&b.StartWALFile,
		&b.StartWALOffset,
		&b.StopWALFile,
		&b.StopWALOffset,
		&b.Directory,
		&b.Error,
		&b.StartedAt,
		&b.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Path returns the catalog file path (or ":memory:" for in-memory catalogs).
func (s *SQLiteCatalog) Path() string {
	return s.path
}

// CheckMigrations verifies the catalog schema is up-to-date.
func (s *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteCatalog implements hb.Catalog interface
var _ hb.Catalog = (*SQLiteCatalog)(nil)
