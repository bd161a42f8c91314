package hb

import "errors"

// Start and stop failures are reported to the operator without the
// underlying server error; the session implementation logs the cause.
var (
	ErrStartBackup = errors.New("could not start hot backup")
	ErrStopBackup  = errors.New("could not stop hot backup")
)
