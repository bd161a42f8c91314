package sink

import (
	"fmt"
	"path"
	"sync"

	"hb-go/internal/hb"
)

// MemorySink keeps backup files in memory. Useful for testing.
// This implementation is safe for concurrent use.
type MemorySink struct {
	mu    sync.RWMutex
	files map[string][]byte // "directory/name" -> contents
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte)}
}

// Path returns directory unchanged: there is no filesystem behind the sink.
func (m *MemorySink) Path(directory string) string {
	return directory
}

func (m *MemorySink) WriteBackupFiles(directory string, files *hb.BackupFiles) error {
	if err := checkDirectory(directory); err != nil {
		return err
	}
	out, err := backupFiles(files)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range out {
		m.files[path.Join(directory, f.name)] = append([]byte(nil), f.data...)
	}
	return nil
}

// ReadFile returns the contents of name inside directory.
func (m *MemorySink) ReadFile(directory, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path.Join(directory, name)]
	if !ok {
		return nil, fmt.Errorf("%s not found in %s", name, directory)
	}
	return append([]byte(nil), data...), nil
}

// ValidateSetup always succeeds for the in-memory sink.
func (m *MemorySink) ValidateSetup() error {
	return nil
}

var _ hb.Sink = (*MemorySink)(nil)
