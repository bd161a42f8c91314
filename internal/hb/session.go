package hb

import "context"

// Session drives a database server through a hot backup.
// Implementations are not safe for concurrent use: callers must have at most
// one operation in flight per session.
type Session interface {
	// StartBackup puts the server into backup mode and returns the WAL
	// position the backup starts from. Any failure is ErrStartBackup.
	StartBackup(ctx context.Context) (*StartRecord, error)

	// StopBackup takes the server out of backup mode and returns the WAL
	// position needed for consistency plus the backup label and tablespace
	// map contents. Any failure is ErrStopBackup.
	StopBackup(ctx context.Context) (*StopRecord, error)

	// Version returns the server's version banner. Errors are returned as-is.
	Version(ctx context.Context) (*VersionRecord, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
