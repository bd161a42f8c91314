package hb

// StartRecord is the WAL position at which a hot backup began.
type StartRecord struct {
	FileName   string `json:"file_name"`
	FileOffset string `json:"file_offset"` // zero-padded to at least 8 decimal digits
}

// StopRecord is the WAL position at which a hot backup becomes consistent,
// together with the files the server produced for the backup. LabelFile and
// SpcMapFile are opaque and must be stored next to the copied data files
// byte for byte.
type StopRecord struct {
	FileName   string `json:"file_name"`
	FileOffset string `json:"file_offset"`
	LabelFile  []byte `json:"labelfile"`
	SpcMapFile []byte `json:"spcmapfile"`
}

// VersionRecord holds the server's full version banner.
type VersionRecord struct {
	Version string `json:"version"`
}
