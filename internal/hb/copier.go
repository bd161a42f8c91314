package hb

import "context"

// CopyRequest describes the data-file copy to run while the server is in
// backup mode.
type CopyRequest struct {
	Directory string // destination, as returned by Sink.Path
	Start     *StartRecord
}

// Copier copies the server's data files. It runs between StartBackup and
// StopBackup and must return only when the copy is finished.
type Copier interface {
	Copy(ctx context.Context, req CopyRequest) error
}
