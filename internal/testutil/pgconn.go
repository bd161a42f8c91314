package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Statement is one statement received by a StubConn.
type Statement struct {
	SQL  string
	Args []any
}

// StubConn is a scripted stand-in for a PostgreSQL connection. It answers
// the statements the backup controller sends, based on the exported fields,
// and records every statement it receives. Fields may be changed between
// calls. Safe for concurrent use.
type StubConn struct {
	mu sync.Mutex

	// ServerVersion is returned for server_version_num.
	ServerVersion int
	// Banner is returned for SELECT version().
	Banner string
	// StartRow is returned for the backup start query: file name and offset.
	StartRow []any
	// StopRow is returned for the backup stop query: file name, offset,
	// label file and tablespace map.
	StopRow []any

	SetupErr   error
	VersionErr error // server_version_num
	StartErr   error
	StopErr    error
	BannerErr  error // SELECT version()

	statements []Statement
	closed     bool
}

// NewStubConn creates a StubConn for a server of the given version with
// plausible default rows.
func NewStubConn(version int) *StubConn {
	return &StubConn{
		ServerVersion: version,
		Banner:        "PostgreSQL 15.4 on x86_64-pc-linux-gnu, compiled by gcc (GCC) 12.2.0, 64-bit",
		StartRow:      []any{"000000010000000000000002", int64(40)},
		StopRow: []any{
			"000000010000000000000002", int64(312),
			[]byte("START WAL LOCATION: 0/2000028 (file 000000010000000000000002)\n"),
			[]byte(""),
		},
	}
}

// Like pgx, Exec and QueryRow refuse to send anything once ctx is done;
// such statements are not recorded.
func (c *StubConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	c.record(sql, args)

	if strings.Contains(sql, "statement_timeout") && c.SetupErr != nil {
		return pgconn.CommandTag{}, c.SetupErr
	}
	return pgconn.NewCommandTag("SET"), nil
}

func (c *StubConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return &stubRow{err: err}
	}
	c.record(sql, args)

	switch {
	case strings.Contains(sql, "backup_start") || strings.Contains(sql, "start_backup"):
		return &stubRow{values: c.StartRow, err: c.StartErr}
	case strings.Contains(sql, "backup_stop") || strings.Contains(sql, "stop_backup"):
		return &stubRow{values: c.StopRow, err: c.StopErr}
	case strings.Contains(sql, "server_version_num"):
		return &stubRow{values: []any{c.ServerVersion}, err: c.VersionErr}
	case strings.Contains(sql, "version()"):
		return &stubRow{values: []any{c.Banner}, err: c.BannerErr}
	default:
		return &stubRow{err: fmt.Errorf("stub: unexpected query: %s", sql)}
	}
}

func (c *StubConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Statements returns the statements received so far, in order.
func (c *StubConn) Statements() []Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Statement(nil), c.statements...)
}

// LastStatement returns the most recent statement, or an empty Statement.
func (c *StubConn) LastStatement() Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statements) == 0 {
		return Statement{}
	}
	return c.statements[len(c.statements)-1]
}

// Closed reports whether Close has been called.
func (c *StubConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *StubConn) record(sql string, args []any) {
	c.statements = append(c.statements, Statement{SQL: sql, Args: append([]any(nil), args...)})
}

// stubRow implements pgx.Row over a fixed list of values.
type stubRow struct {
	values []any
	err    error
}

func (r *stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("stub: scanning %d values into %d destinations", len(r.values), len(dest))
	}
	for i, v := range r.values {
		if err := assign(dest[i], v); err != nil {
			return fmt.Errorf("stub: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, v any) error {
	switch d := dest.(type) {
	case *string:
		switch v := v.(type) {
		case string:
			*d = v
		case []byte:
			*d = string(v)
		default:
			return fmt.Errorf("cannot scan %T into *string", v)
		}
	case *[]byte:
		switch v := v.(type) {
		case []byte:
			*d = append(make([]byte, 0, len(v)), v...)
		case string:
			*d = []byte(v)
		default:
			return fmt.Errorf("cannot scan %T into *[]byte", v)
		}
	case *int64:
		switch v := v.(type) {
		case int64:
			*d = v
		case int:
			*d = int64(v)
		default:
			return fmt.Errorf("cannot scan %T into *int64", v)
		}
	case *int:
		switch v := v.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		default:
			return fmt.Errorf("cannot scan %T into *int", v)
		}
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}
