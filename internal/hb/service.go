package hb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/errs"
)

// HBService is the orchestration layer that sequences a hot backup across
// the session, the copier, the sink and the catalog.
type HBService struct {
	session Session
	catalog Catalog
	sink    Sink
	copier  Copier
	logger  Logger
	clock   Clock
	idgen   IDGenerator
}

// NewHBService creates a new HBService with the provided dependencies.
func NewHBService(session Session, catalog Catalog, sink Sink, copier Copier, logger Logger, clock Clock, idgen IDGenerator) *HBService {
	return &HBService{
		session: session,
		catalog: catalog,
		sink:    sink,
		copier:  copier,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// BackupResult summarizes a finished backup.
type BackupResult struct {
	ID        string
	Directory string
	Start     *StartRecord
	Stop      *StopRecord
}

// BaseBackupName returns the destination directory name for a backup that
// started at the given WAL position.
func BaseBackupName(start *StartRecord) string {
	return fmt.Sprintf("base_%s_%s", start.FileName, start.FileOffset)
}

// ServerVersion returns the server's version banner.
func (s *HBService) ServerVersion(ctx context.Context) (*VersionRecord, error) {
	return s.session.Version(ctx)
}

// Backup runs one complete hot backup: start, copy, stop, then store the
// label and tablespace map. Once StartBackup has succeeded StopBackup is
// always attempted, even after ctx is canceled, so the server is not left
// in backup mode when the copy fails or the run is interrupted.
func (s *HBService) Backup(ctx context.Context) (*BackupResult, error) {
	version, err := s.session.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying server version: %w", err)
	}
	s.logger.Debug("server version", "version", version.Version)

	b := &Backup{
		ID:            s.idgen.New(),
		ServerVersion: version.Version,
		Status:        StatusRunning,
		StartedAt:     s.clock.Now(),
	}
	if err := s.catalog.CreateBackup(b); err != nil {
		return nil, fmt.Errorf("recording backup: %w", err)
	}

	start, err := s.session.StartBackup(ctx)
	if err != nil {
		return nil, s.fail(b.ID, err)
	}
	directory := BaseBackupName(start)
	s.logger.Info("hot backup started", "id", b.ID, "file_name", start.FileName, "file_offset", start.FileOffset)

	if err := s.catalog.MarkStarted(b.ID, start, directory); err != nil {
		return nil, s.abort(ctx, b.ID, fmt.Errorf("recording backup start: %w", err))
	}

	req := CopyRequest{Directory: s.sink.Path(directory), Start: start}
	if err := s.copier.Copy(ctx, req); err != nil {
		return nil, s.abort(ctx, b.ID, fmt.Errorf("copying data files: %w", err))
	}

	stopCtx, cancel := stopContext(ctx)
	stop, err := s.session.StopBackup(stopCtx)
	cancel()
	if err != nil {
		return nil, s.fail(b.ID, err)
	}
	s.logger.Info("hot backup stopped", "id", b.ID, "file_name", stop.FileName, "file_offset", stop.FileOffset)

	files := &BackupFiles{Start: start, Stop: stop, Version: version}
	if err := s.sink.WriteBackupFiles(directory, files); err != nil {
		return nil, s.fail(b.ID, fmt.Errorf("writing backup files: %w", err))
	}

	if err := s.catalog.CompleteBackup(b.ID, stop, s.clock.Now()); err != nil {
		s.logger.Error("backup finished but could not be recorded", "id", b.ID, "directory", directory, "error", err)
		return nil, s.fail(b.ID, fmt.Errorf("recording backup completion: %w", err))
	}

	s.logger.Info("backup complete", "id", b.ID, "directory", directory)
	return &BackupResult{
		ID:        b.ID,
		Directory: directory,
		Start:     start,
		Stop:      stop,
	}, nil
}

// abort stops a backup that started but could not be finished, then marks
// it failed. The returned error carries cause and any stop failure.
func (s *HBService) abort(ctx context.Context, id string, cause error) error {
	s.logger.Warn("aborting hot backup", "id", id, "error", cause)
	stopCtx, cancel := stopContext(ctx)
	defer cancel()
	if _, err := s.session.StopBackup(stopCtx); err != nil {
		cause = errs.Combine(cause, err)
	}
	return s.fail(id, cause)
}

// StopTimeout bounds the stop call issued once a backup has started.
const StopTimeout = time.Minute

// stopContext returns a context for ending a started backup. It ignores
// cancellation of ctx, so an interrupted run still leaves backup mode.
func stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), StopTimeout)
}

// fail marks the backup failed in the catalog and returns cause, combined
// with the catalog error if recording the failure also failed.
func (s *HBService) fail(id string, cause error) error {
	if err := s.catalog.FailBackup(id, cause.Error(), s.clock.Now()); err != nil {
		return errs.Combine(cause, fmt.Errorf("recording backup failure: %w", err))
	}
	return cause
}

// History returns the most recent backup attempts, newest first.
func (s *HBService) History(limit int) ([]*Backup, error) {
	return ListHistory(s.catalog, limit)
}

// ListHistory returns the most recent backup attempts in catalog, newest
// first. It needs no server connection.
func ListHistory(catalog Catalog, limit int) ([]*Backup, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	backups, err := catalog.ListBackups(limit)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return backups, nil
}
