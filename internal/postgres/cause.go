package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// causeAttrs describes err as slog key/value pairs for the log entry written
// before a start or stop failure is reported without its cause.
func causeAttrs(err error) []any {
	attrs := []any{"error", err.Error()}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		attrs = append(attrs, "sqlstate", pgErr.Code, "severity", pgErr.Severity)
		if reason := reasonFor(pgErr.Code); reason != "" {
			attrs = append(attrs, "reason", reason)
		}
		if pgErr.Hint != "" {
			attrs = append(attrs, "hint", pgErr.Hint)
		}
		return attrs
	}

	switch {
	case errors.Is(err, context.Canceled):
		attrs = append(attrs, "reason", "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		attrs = append(attrs, "reason", "timed out")
	case pgconn.Timeout(err):
		attrs = append(attrs, "reason", "timed out")
	}
	return attrs
}

// reasonFor names the SQLSTATEs a backup start or stop commonly fails with.
func reasonFor(code string) string {
	switch code {
	case pgerrcode.ObjectNotInPrerequisiteState:
		return "backup already in progress, not in progress, or WAL level too low"
	case pgerrcode.InsufficientPrivilege:
		return "role lacks permission to control backups"
	case pgerrcode.UndefinedFunction:
		return "backup function not available on this server"
	case pgerrcode.QueryCanceled:
		return "statement canceled"
	case pgerrcode.AdminShutdown, pgerrcode.CrashShutdown:
		return "server shutting down"
	default:
		if pgerrcode.IsConnectionException(code) {
			return "connection failure"
		}
		return ""
	}
}
