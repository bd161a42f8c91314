package sink

import (
	"encoding/json"
	"fmt"

	"hb-go/internal/hb"
)

// File names written into each backup directory.
const (
	BackupLabelFile   = "backup_label"
	TablespaceMapFile = "tablespace_map"
	SentinelFile      = "sentinel.json"
)

// Sentinel describes a finished backup. It is written last, so a directory
// without one holds an incomplete backup.
type Sentinel struct {
	StartSegment     string `json:"wal_segment_backup_start"`
	StartOffset      string `json:"wal_segment_offset_backup_start"`
	StopSegment      string `json:"wal_segment_backup_stop"`
	StopOffset       string `json:"wal_segment_offset_backup_stop"`
	ServerVersion    string `json:"server_version,omitempty"`
	HasTablespaceMap bool   `json:"has_tablespace_map"`
}

// NewSentinel builds the sentinel for files.
func NewSentinel(files *hb.BackupFiles) *Sentinel {
	s := &Sentinel{
		StartSegment:     files.Start.FileName,
		StartOffset:      files.Start.FileOffset,
		StopSegment:      files.Stop.FileName,
		StopOffset:       files.Stop.FileOffset,
		HasTablespaceMap: len(files.Stop.SpcMapFile) > 0,
	}
	if files.Version != nil {
		s.ServerVersion = files.Version.Version
	}
	return s
}

// backupFiles returns the files to write for one backup, in write order.
func backupFiles(files *hb.BackupFiles) ([]namedFile, error) {
	if files == nil || files.Start == nil || files.Stop == nil {
		return nil, fmt.Errorf("start and stop records are required")
	}

	sentinel, err := json.MarshalIndent(NewSentinel(files), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sentinel: %w", err)
	}

	out := []namedFile{{BackupLabelFile, files.Stop.LabelFile}}
	if len(files.Stop.SpcMapFile) > 0 {
		out = append(out, namedFile{TablespaceMapFile, files.Stop.SpcMapFile})
	}
	return append(out, namedFile{SentinelFile, append(sentinel, '\n')}), nil
}

type namedFile struct {
	name string
	data []byte
}
