package hb

// BackupFiles is everything the server produced for one backup that has to
// be stored alongside the copied data directory.
type BackupFiles struct {
	Start   *StartRecord
	Stop    *StopRecord
	Version *VersionRecord
}

// Sink stores the per-backup files next to the copied data files.
type Sink interface {
	// WriteBackupFiles writes backup_label, tablespace_map (when the server
	// produced one) and a sentinel describing the backup into directory.
	WriteBackupFiles(directory string, files *BackupFiles) error

	// Path returns where directory lives in the sink, for handing to the copier.
	Path(directory string) string

	// ValidateSetup verifies that the sink is accessible and properly configured.
	ValidateSetup() error
}
