package postgres_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"hb-go/internal/hb"
	"hb-go/internal/postgres"
	"hb-go/internal/testutil"
)

func newController(t *testing.T, conn *testutil.StubConn) (*postgres.Controller, *testutil.RecordingLogger) {
	t.Helper()
	logger := testutil.NewRecordingLogger()
	c, err := postgres.New(context.Background(), conn, logger, testutil.FixedClock())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, logger
}

func TestNew(t *testing.T) {
	t.Run("disables statement timeout then reads version", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		c, _ := newController(t, conn)

		stmts := conn.Statements()
		if len(stmts) != 2 {
			t.Fatalf("construction issued %d statements, want 2: %v", len(stmts), stmts)
		}
		if stmts[0].SQL != "SET statement_timeout = 0" {
			t.Errorf("first statement = %q, want SET statement_timeout = 0", stmts[0].SQL)
		}
		if !strings.Contains(stmts[1].SQL, "server_version_num") {
			t.Errorf("second statement = %q, want server_version_num query", stmts[1].SQL)
		}
		if c.ServerVersion() != 150000 {
			t.Errorf("ServerVersion() = %d, want 150000", c.ServerVersion())
		}
	})

	t.Run("setup statement failure is fatal and closes the connection", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		conn.SetupErr = errors.New("permission denied to set parameter")

		c, err := postgres.New(context.Background(), conn, hb.NewNopLogger(), testutil.FixedClock())
		if err == nil {
			t.Fatal("New() expected error, got nil")
		}
		if c != nil {
			t.Error("New() returned a controller alongside an error")
		}
		if !postgres.Error.Has(err) {
			t.Errorf("error %v is not of class postgres.Error", err)
		}
		if !errors.Is(err, conn.SetupErr) {
			t.Errorf("error %v does not wrap the setup failure", err)
		}
		if !conn.Closed() {
			t.Error("connection was not closed after failed setup")
		}
	})

	t.Run("version query failure is fatal", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		conn.VersionErr = errors.New("connection reset")

		_, err := postgres.New(context.Background(), conn, hb.NewNopLogger(), testutil.FixedClock())
		if !postgres.Error.Has(err) {
			t.Fatalf("New() error = %v, want postgres.Error", err)
		}
		if !conn.Closed() {
			t.Error("connection was not closed after failed setup")
		}
	})

	t.Run("rejects servers without non-exclusive backups", func(t *testing.T) {
		conn := testutil.NewStubConn(90500)

		_, err := postgres.New(context.Background(), conn, hb.NewNopLogger(), testutil.FixedClock())
		if err == nil {
			t.Fatal("New() expected error for 9.5 server, got nil")
		}
		if !strings.Contains(err.Error(), "90500") {
			t.Errorf("error %q does not name the server version", err)
		}
		if !conn.Closed() {
			t.Error("connection was not closed")
		}
	})
}

func TestController_WALName(t *testing.T) {
	t.Run("selected by version", func(t *testing.T) {
		modern, _ := newController(t, testutil.NewStubConn(100000))
		legacy, _ := newController(t, testutil.NewStubConn(90600))

		if modern.WALName() != "wal" {
			t.Errorf("WALName() at 100000 = %q, want wal", modern.WALName())
		}
		if legacy.WALName() != "xlog" {
			t.Errorf("WALName() at 90600 = %q, want xlog", legacy.WALName())
		}
	})

	t.Run("fixed for the lifetime of the handle", func(t *testing.T) {
		conn := testutil.NewStubConn(100000)
		c, _ := newController(t, conn)

		conn.ServerVersion = 90600

		if c.WALName() != "wal" {
			t.Errorf("WALName() = %q after version change, want wal", c.WALName())
		}
		if _, err := c.StartBackup(context.Background()); err != nil {
			t.Fatalf("StartBackup() error = %v", err)
		}
		if sql := conn.LastStatement().SQL; !strings.Contains(sql, "pg_walfile_name_offset") {
			t.Errorf("StartBackup() sent %q, want pg_walfile_name_offset", sql)
		}
		if _, err := c.StopBackup(context.Background()); err != nil {
			t.Fatalf("StopBackup() error = %v", err)
		}
		if sql := conn.LastStatement().SQL; !strings.Contains(sql, "pg_walfile_name_offset") || strings.Contains(sql, "xlog") {
			t.Errorf("StopBackup() sent %q, want wal vocabulary only", sql)
		}
	})
}

func TestController_StartBackup(t *testing.T) {
	t.Run("dispatch by server version", func(t *testing.T) {
		tests := []struct {
			version  int
			wantCall string
		}{
			{90600, "pg_xlogfile_name_offset(pg_start_backup($1, false, false))"},
			{140000, "pg_walfile_name_offset(pg_start_backup($1, false, false))"},
			{150000, "pg_walfile_name_offset(pg_backup_start($1, false))"},
			{160002, "pg_walfile_name_offset(pg_backup_start($1, false))"},
		}

		for _, tt := range tests {
			conn := testutil.NewStubConn(tt.version)
			c, _ := newController(t, conn)

			if _, err := c.StartBackup(context.Background()); err != nil {
				t.Fatalf("version %d: StartBackup() error = %v", tt.version, err)
			}
			if sql := conn.LastStatement().SQL; !strings.Contains(sql, tt.wantCall) {
				t.Errorf("version %d: StartBackup() sent %q, want it to contain %q", tt.version, sql, tt.wantCall)
			}
		}
	})

	t.Run("passes a fresh utc label", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		clock := testutil.NewStubClock(time.Date(2024, 3, 10, 1, 2, 3, 4000, time.FixedZone("X", 3*60*60)))
		c, err := postgres.New(context.Background(), conn, hb.NewNopLogger(), clock)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer c.Close(context.Background())

		if _, err := c.StartBackup(context.Background()); err != nil {
			t.Fatalf("StartBackup() error = %v", err)
		}
		first := conn.LastStatement().Args

		clock.Advance(time.Microsecond)
		if _, err := c.StartBackup(context.Background()); err != nil {
			t.Fatalf("StartBackup() error = %v", err)
		}
		second := conn.LastStatement().Args

		want := []any{"freeze_start_2024-03-09T22:02:03.000004+00:00"}
		if diff := cmp.Diff(want, first); diff != "" {
			t.Errorf("label args mismatch (-want +got):\n%s", diff)
		}
		if len(second) != 1 || second[0] == first[0] {
			t.Errorf("second label %v not distinct from first %v", second, first)
		}
	})

	t.Run("pads file offset", func(t *testing.T) {
		tests := []struct {
			offset int64
			want   string
		}{
			{0, "00000000"},
			{255, "00000255"},
			{16777215, "16777215"},
		}

		for _, tt := range tests {
			conn := testutil.NewStubConn(150000)
			conn.StartRow = []any{"000000010000000000000003", tt.offset}
			c, _ := newController(t, conn)

			got, err := c.StartBackup(context.Background())
			if err != nil {
				t.Fatalf("StartBackup() error = %v", err)
			}
			want := &hb.StartRecord{FileName: "000000010000000000000003", FileOffset: tt.want}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("offset %d: record mismatch (-want +got):\n%s", tt.offset, diff)
			}
			if len(got.FileOffset) != 8 {
				t.Errorf("offset %d rendered as %q, want 8 characters", tt.offset, got.FileOffset)
			}
		}
	})

	t.Run("any failure becomes ErrStartBackup", func(t *testing.T) {
		causes := []error{
			errors.New("generic stub failure"),
			&pgconn.PgError{Code: "55000", Severity: "ERROR", Message: "a backup is already in progress"},
			&pgconn.PgError{Code: "42501", Severity: "ERROR", Message: "permission denied for function pg_backup_start"},
			syscall.ECONNRESET,
		}

		for _, cause := range causes {
			conn := testutil.NewStubConn(150000)
			conn.StartErr = cause
			c, logger := newController(t, conn)

			rec, err := c.StartBackup(context.Background())
			if rec != nil {
				t.Errorf("StartBackup() returned record %v alongside error", rec)
			}
			if err != hb.ErrStartBackup {
				t.Errorf("StartBackup() error = %v, want exactly ErrStartBackup", err)
			}
			if errors.Is(err, cause) {
				t.Errorf("StartBackup() error exposes cause %v", cause)
			}
			if strings.Contains(err.Error(), cause.Error()) {
				t.Errorf("StartBackup() error text %q leaks cause", err.Error())
			}

			logged := logger.Entries("ERROR")
			if len(logged) != 1 {
				t.Fatalf("logged %d errors, want 1", len(logged))
			}
			if logged[0].Attr("error") != cause.Error() {
				t.Errorf("logged error = %v, want %q", logged[0].Attr("error"), cause.Error())
			}
		}
	})

	t.Run("logs sqlstate of server errors", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		conn.StartErr = &pgconn.PgError{Code: "55000", Severity: "ERROR", Message: "a backup is already in progress"}
		c, logger := newController(t, conn)

		c.StartBackup(context.Background())

		logged := logger.Entries("ERROR")
		if len(logged) != 1 {
			t.Fatalf("logged %d errors, want 1", len(logged))
		}
		if got := logged[0].Attr("sqlstate"); got != "55000" {
			t.Errorf("sqlstate = %v, want 55000", got)
		}
		if logged[0].Attr("reason") == nil {
			t.Errorf("no reason logged: %s", logged[0])
		}
		if got := logged[0].Attr("protocol"); got != "modern" {
			t.Errorf("protocol = %v, want modern", got)
		}
	})
}

func TestController_StopBackup(t *testing.T) {
	t.Run("dispatch by server version", func(t *testing.T) {
		tests := []struct {
			version  int
			wantCall string
			notCall  string
		}{
			{90600, "FROM pg_stop_backup(false)", "pg_backup_stop"},
			{150000, "FROM pg_backup_stop()", "pg_stop_backup"},
		}

		for _, tt := range tests {
			conn := testutil.NewStubConn(tt.version)
			c, _ := newController(t, conn)

			if _, err := c.StopBackup(context.Background()); err != nil {
				t.Fatalf("version %d: StopBackup() error = %v", tt.version, err)
			}
			sql := conn.LastStatement().SQL
			if !strings.Contains(sql, tt.wantCall) {
				t.Errorf("version %d: StopBackup() sent %q, want it to contain %q", tt.version, sql, tt.wantCall)
			}
			if strings.Contains(sql, tt.notCall) {
				t.Errorf("version %d: StopBackup() sent %q, must not contain %q", tt.version, sql, tt.notCall)
			}
			if args := conn.LastStatement().Args; len(args) != 0 {
				t.Errorf("version %d: StopBackup() passed args %v, want none", tt.version, args)
			}
		}
	})

	t.Run("passes payloads through unchanged", func(t *testing.T) {
		label := []byte("START WAL LOCATION: 0/1000028 (file 000000010000000000000001)\n" +
			"CHECKPOINT LOCATION: 0/1000060\nBACKUP METHOD: streamed\n\x00\xff")
		spcmap := []byte("16385 /mnt/tablespaces/fast\n")

		conn := testutil.NewStubConn(150000)
		conn.StopRow = []any{"000000010000000000000001", int64(16777216), label, spcmap}
		c, _ := newController(t, conn)

		got, err := c.StopBackup(context.Background())
		if err != nil {
			t.Fatalf("StopBackup() error = %v", err)
		}

		want := &hb.StopRecord{
			FileName:   "000000010000000000000001",
			FileOffset: "16777216",
			LabelFile:  label,
			SpcMapFile: spcmap,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("record mismatch (-want +got):\n%s", diff)
		}
		if !bytes.Equal(got.LabelFile, label) || !bytes.Equal(got.SpcMapFile, spcmap) {
			t.Error("payloads are not byte-identical")
		}
	})

	t.Run("any failure becomes ErrStopBackup", func(t *testing.T) {
		conn := testutil.NewStubConn(90600)
		conn.StopErr = &pgconn.PgError{Code: "55000", Severity: "ERROR", Message: "non-exclusive backup is not in progress"}
		c, logger := newController(t, conn)

		rec, err := c.StopBackup(context.Background())
		if rec != nil {
			t.Errorf("StopBackup() returned record %v alongside error", rec)
		}
		if err != hb.ErrStopBackup {
			t.Errorf("StopBackup() error = %v, want exactly ErrStopBackup", err)
		}
		if errors.Is(err, hb.ErrStartBackup) {
			t.Error("stop failure must be distinct from start failure")
		}
		if n := len(logger.Entries("ERROR")); n != 1 {
			t.Errorf("logged %d errors, want 1", n)
		}
	})

	t.Run("repeated failure fails again", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		conn.StopErr = errors.New("backup is not in progress")
		c, _ := newController(t, conn)

		for i := 0; i < 2; i++ {
			if _, err := c.StopBackup(context.Background()); err != hb.ErrStopBackup {
				t.Errorf("attempt %d: StopBackup() error = %v, want ErrStopBackup", i+1, err)
			}
		}
	})
}

func TestController_Version(t *testing.T) {
	t.Run("returns banner", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		c, _ := newController(t, conn)

		got, err := c.Version(context.Background())
		if err != nil {
			t.Fatalf("Version() error = %v", err)
		}
		want := &hb.VersionRecord{Version: conn.Banner}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("record mismatch (-want +got):\n%s", diff)
		}
		if sql := conn.LastStatement().SQL; sql != "SELECT version()" {
			t.Errorf("Version() sent %q", sql)
		}
	})

	t.Run("propagates errors unwrapped", func(t *testing.T) {
		conn := testutil.NewStubConn(150000)
		c, logger := newController(t, conn)
		conn.BannerErr = syscall.ECONNRESET

		rec, err := c.Version(context.Background())
		if rec != nil {
			t.Errorf("Version() returned record %v alongside error", rec)
		}
		if err != syscall.ECONNRESET {
			t.Errorf("Version() error = %v, want the connection reset error itself", err)
		}
		if errors.Is(err, hb.ErrStartBackup) || errors.Is(err, hb.ErrStopBackup) {
			t.Error("Version() error translated into a backup failure")
		}
		if n := len(logger.Entries("ERROR")); n != 0 {
			t.Errorf("Version() logged %d errors, want 0", n)
		}
	})
}

func TestController_Close(t *testing.T) {
	conn := testutil.NewStubConn(150000)
	c, err := postgres.New(context.Background(), conn, hb.NewNopLogger(), testutil.FixedClock())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !conn.Closed() {
		t.Error("Close() did not close the connection")
	}
}
