package postgres

import (
	"fmt"
	"time"
)

// LabelPrefix starts every backup label this package passes to the server.
const LabelPrefix = "freeze_start_"

// labelLayout is RFC 3339 with fixed microsecond precision and a numeric
// offset, so labels sort by time and always carry "+00:00".
const labelLayout = "2006-01-02T15:04:05.000000-07:00"

// NewLabel returns the backup label for a backup started at t.
func NewLabel(t time.Time) string {
	return LabelPrefix + t.UTC().Format(labelLayout)
}

// formatOffset renders a WAL file offset as at least 8 zero-padded decimal
// digits.
func formatOffset(offset int64) string {
	return fmt.Sprintf("%08d", offset)
}
