package hb

import (
	"database/sql"
	"time"
)

// Backup statuses recorded in the catalog.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Backup is one hot backup attempt as recorded in the catalog.
type Backup struct {
	ID             string
	ServerVersion  string
	Status         string
	StartWALFile   string
	StartWALOffset string
	StopWALFile    string
	StopWALOffset  string
	Directory      string
	Error          string
	StartedAt      time.Time
	FinishedAt     sql.NullTime
}

// Catalog records the history of backup attempts on the local host.
type Catalog interface {
	// CreateBackup inserts a new attempt. b.ID and b.StartedAt must be set.
	CreateBackup(b *Backup) error

	// MarkStarted records the WAL position the server reported at start and
	// the destination directory derived from it.
	MarkStarted(id string, start *StartRecord, directory string) error

	// CompleteBackup records the stop position and marks the attempt complete.
	CompleteBackup(id string, stop *StopRecord, finishedAt time.Time) error

	// FailBackup marks the attempt failed with the given reason.
	FailBackup(id string, reason string, finishedAt time.Time) error

	// FindBackup returns the attempt with the given ID, or nil if none exists.
	FindBackup(id string) (*Backup, error)

	// ListBackups returns up to limit attempts, newest first.
	ListBackups(limit int) ([]*Backup, error)

	// Close closes the catalog.
	Close() error
}
