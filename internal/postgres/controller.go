package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zeebo/errs"

	"hb-go/internal/hb"
)

// Error is the class of errors returned when a controller cannot be set up.
var Error = errs.Class("postgres")

// DefaultDatabase is the administrative database connected to when the
// connection string names none.
const DefaultDatabase = "postgres"

// Conn is the subset of *pgx.Conn the controller uses.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

var _ Conn = (*pgx.Conn)(nil)

// Controller runs the hot backup protocol over one connection. It keeps no
// record of whether a backup is in progress; callers pair StartBackup with
// StopBackup and must not issue concurrent calls.
type Controller struct {
	conn     Conn
	version  int
	protocol protocol
	logger   hb.Logger
	clock    hb.Clock
}

// Connect opens a connection described by connString and sets it up for
// backup control. The caller must call Close when done.
func Connect(ctx context.Context, connString string, logger hb.Logger, clock hb.Clock) (*Controller, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("parsing connection string: %w", err))
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("connecting to %s: %w", cfg.Host, err))
	}

	c, err := New(ctx, conn, logger, clock)
	if err != nil {
		return nil, err
	}
	logger.Debug("connected", "host", cfg.Host, "database", cfg.Database, "server_version", c.version)
	return c, nil
}

// New sets up conn for backup control and takes ownership of it: the
// connection is closed if setup fails.
//
// pgx runs every statement outside a transaction unless one is opened
// explicitly, so statements take effect immediately.
func New(ctx context.Context, conn Conn, logger hb.Logger, clock hb.Clock) (_ *Controller, err error) {
	defer func() {
		if err != nil {
			err = errs.Combine(err, conn.Close(ctx))
		}
	}()

	// A backup spans the whole file copy; the server must not cancel it.
	if _, err := conn.Exec(ctx, "SET statement_timeout = 0"); err != nil {
		return nil, Error.Wrap(fmt.Errorf("disabling statement timeout: %w", err))
	}

	var version int
	if err := conn.QueryRow(ctx, "SELECT current_setting('server_version_num')::integer").Scan(&version); err != nil {
		return nil, Error.Wrap(fmt.Errorf("reading server version: %w", err))
	}
	if version < minServerVersion {
		return nil, Error.New("server version %d does not support non-exclusive backups (need %d or later)", version, minServerVersion)
	}

	return &Controller{
		conn:     conn,
		version:  version,
		protocol: newProtocol(version),
		logger:   logger,
		clock:    clock,
	}, nil
}

// ServerVersion returns the server_version_num read when the controller was
// created.
func (c *Controller) ServerVersion() int { return c.version }

// WALName returns the WAL vocabulary ("wal" or "xlog") used with this server.
func (c *Controller) WALName() string { return c.protocol.walName }

// StartBackup puts the server into backup mode under a fresh label and
// returns the WAL position the backup starts from.
func (c *Controller) StartBackup(ctx context.Context) (*hb.StartRecord, error) {
	label := NewLabel(c.clock.Now())

	var (
		rec    hb.StartRecord
		offset int64
	)
	err := c.conn.QueryRow(ctx, c.protocol.startSQL, label).Scan(&rec.FileName, &offset)
	if err != nil {
		c.logger.Error("starting hot backup", append([]any{"label", label, "protocol", c.protocol.kind.String()}, causeAttrs(err)...)...)
		return nil, hb.ErrStartBackup
	}
	rec.FileOffset = formatOffset(offset)

	c.logger.Debug("backup mode entered", "label", label)
	return &rec, nil
}

// StopBackup takes the server out of backup mode. The returned record holds
// the WAL position needed for consistency and the label and tablespace map
// contents, unmodified.
func (c *Controller) StopBackup(ctx context.Context) (*hb.StopRecord, error) {
	var (
		rec    hb.StopRecord
		offset int64
	)
	err := c.conn.QueryRow(ctx, c.protocol.stopSQL).Scan(&rec.FileName, &offset, &rec.LabelFile, &rec.SpcMapFile)
	if err != nil {
		c.logger.Error("stopping hot backup", append([]any{"protocol", c.protocol.kind.String()}, causeAttrs(err)...)...)
		return nil, hb.ErrStopBackup
	}
	rec.FileOffset = formatOffset(offset)

	c.logger.Debug("backup mode left", "file_name", rec.FileName)
	return &rec, nil
}

// Version returns the server's version banner. Errors are not translated:
// a failure here means the connection itself is unusable.
func (c *Controller) Version(ctx context.Context) (*hb.VersionRecord, error) {
	var rec hb.VersionRecord
	if err := c.conn.QueryRow(ctx, "SELECT version()").Scan(&rec.Version); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close closes the connection.
func (c *Controller) Close(ctx context.Context) error {
	if err := c.conn.Close(ctx); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

var _ hb.Session = (*Controller)(nil)
