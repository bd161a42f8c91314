package postgres

import "fmt"

// Server version thresholds, as reported by server_version_num.
const (
	// minServerVersion is the first release with non-exclusive backups.
	minServerVersion = 90600
	// walRenameVersion renamed xlog to wal in function names.
	walRenameVersion = 100000
	// backupAPIVersion replaced pg_start_backup/pg_stop_backup with
	// pg_backup_start/pg_backup_stop.
	backupAPIVersion = 150000
)

type protocolKind int

const (
	legacyProtocol protocolKind = iota
	modernProtocol
)

func (k protocolKind) String() string {
	switch k {
	case legacyProtocol:
		return "legacy"
	case modernProtocol:
		return "modern"
	default:
		return fmt.Sprintf("protocolKind(%d)", int(k))
	}
}

// protocol holds the statements for one server generation. It is resolved
// once per connection.
type protocol struct {
	kind    protocolKind
	walName string // "wal" or "xlog"

	startSQL string // $1 is the backup label
	stopSQL  string
}

// walNameFor returns the WAL vocabulary used in function names by a server
// of the given version.
func walNameFor(version int) string {
	if version >= walRenameVersion {
		return "wal"
	}
	return "xlog"
}

// newProtocol builds the statements for a server of the given version.
//
// Both generations request a spread checkpoint (fast = false). The legacy
// calls also pass exclusive = false; for pg_stop_backup that makes the server
// wait for the last segment to be archived.
func newProtocol(version int) protocol {
	p := protocol{walName: walNameFor(version)}

	startCall, stopCall := "pg_start_backup($1, false, false)", "pg_stop_backup(false)"
	p.kind = legacyProtocol
	if version >= backupAPIVersion {
		startCall, stopCall = "pg_backup_start($1, false)", "pg_backup_stop()"
		p.kind = modernProtocol
	}

	p.startSQL = fmt.Sprintf(
		"SELECT file_name, file_offset FROM pg_%sfile_name_offset(%s)",
		p.walName, startCall)
	p.stopSQL = fmt.Sprintf(
		"SELECT file_name, file_offset, labelfile, spcmapfile"+
			" FROM (SELECT (pg_%sfile_name_offset(lsn)).*, labelfile, spcmapfile FROM %s) a",
		p.walName, stopCall)

	return p
}
