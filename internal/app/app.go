package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zeebo/errs"

	"hb-go/internal/config"
	"hb-go/internal/copier"
	"hb-go/internal/database"
	"hb-go/internal/hb"
	"hb-go/internal/postgres"
	"hb-go/internal/sink"
)

// Error is the class of errors returned while wiring the application.
var Error = errs.Class("app")

// HBApp is the application layer between the CLI and HBService.
// It constructs all dependencies from config and closes them on Close.
type HBApp struct {
	cfg     *config.Config
	session hb.Session
	catalog *database.SQLiteCatalog
	sink    sink.Store
	service *hb.HBService
	logFile *os.File
}

// NewHBApp creates a fully wired HBApp from the given config and connects to
// the server. password overrides the configured one when non-empty.
// The caller must call Close when done.
func NewHBApp(ctx context.Context, cfg *config.Config, password string, level slog.Level) (*HBApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("creating logger: %w", err))
	}
	logger := &slogAdapter{l: l}

	session, err := postgres.Connect(ctx, cfg.Postgres.ConnString(password), logger, hb.RealClock{})
	if err != nil {
		logFile.Close()
		return nil, err
	}

	a, err := newHBApp(cfg, session, logger)
	if err != nil {
		return nil, errs.Combine(err, session.Close(ctx), logFile.Close())
	}
	a.logFile = logFile
	return a, nil
}

// newHBApp wires the catalog, sink and copier around an open session.
func newHBApp(cfg *config.Config, session hb.Session, logger hb.Logger) (*HBApp, error) {
	catalog, err := database.NewCatalogFromConfig(cfg.Catalog)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("opening catalog: %w", err))
	}

	if err := catalog.CheckMigrations(); err != nil {
		catalog.Close()
		return nil, Error.Wrap(fmt.Errorf("catalog schema out of date: %w", err))
	}

	s, err := sink.NewSinkFromConfig(cfg.Destination)
	if err != nil {
		catalog.Close()
		return nil, Error.Wrap(fmt.Errorf("creating destination: %w", err))
	}
	if err := s.ValidateSetup(); err != nil {
		catalog.Close()
		return nil, Error.Wrap(fmt.Errorf("checking destination: %w", err))
	}

	c, err := copier.NewCopierFromConfig(cfg.Copy, logger)
	if err != nil {
		catalog.Close()
		return nil, Error.Wrap(fmt.Errorf("creating copier: %w", err))
	}

	svc := hb.NewHBService(session, catalog, s, c, logger, hb.RealClock{}, hb.UUIDGenerator{})

	return &HBApp{
		cfg:     cfg,
		session: session,
		catalog: catalog,
		sink:    s,
		service: svc,
	}, nil
}

// Backup runs one hot backup.
func (a *HBApp) Backup(ctx context.Context) (*hb.BackupResult, error) {
	return a.service.Backup(ctx)
}

// ServerVersion returns the server's version banner.
func (a *HBApp) ServerVersion(ctx context.Context) (string, error) {
	rec, err := a.service.ServerVersion(ctx)
	if err != nil {
		return "", err
	}
	return rec.Version, nil
}

// History returns the most recent backup attempts.
func (a *HBApp) History(limit int) ([]*hb.Backup, error) {
	return a.service.History(limit)
}

// BackupPath returns where the files of a backup directory live.
func (a *HBApp) BackupPath(directory string) string {
	return a.sink.Path(directory)
}

// Close closes the session, the catalog and the log file.
func (a *HBApp) Close(ctx context.Context) error {
	var group errs.Group
	group.Add(a.session.Close(ctx))
	group.Add(a.catalog.Close())
	if a.logFile != nil {
		group.Add(a.logFile.Close())
	}
	return group.Err()
}

// History lists the most recent backups in the configured catalog. Unlike
// NewHBApp it does not connect to the server.
func History(cfg *config.Config, limit int) ([]*hb.Backup, error) {
	catalog, err := database.NewCatalogFromConfig(cfg.Catalog)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("opening catalog: %w", err))
	}
	defer catalog.Close()

	if err := catalog.CheckMigrations(); err != nil {
		return nil, Error.Wrap(fmt.Errorf("catalog schema out of date: %w", err))
	}
	return hb.ListHistory(catalog, limit)
}
