package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hb-go/internal/hb"
)

// FileSystemSink stores backup files under a root directory:
//
//	<root>/
//	  base_<wal file>_<offset>/
//	    ...             (data files, written by the copier)
//	    backup_label
//	    tablespace_map  (only when the server has tablespaces)
//	    sentinel.json
type FileSystemSink struct {
	root string
}

// NewFileSystemSink creates a sink rooted at the given path, creating it if needed.
func NewFileSystemSink(root string) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sink root: %w", err)
	}
	return &FileSystemSink{root: root}, nil
}

// Path returns the absolute location of directory under the sink root.
func (s *FileSystemSink) Path(directory string) string {
	return filepath.Join(s.root, directory)
}

// WriteBackupFiles writes the label, tablespace map and sentinel into directory.
func (s *FileSystemSink) WriteBackupFiles(directory string, files *hb.BackupFiles) error {
	if err := checkDirectory(directory); err != nil {
		return err
	}
	out, err := backupFiles(files)
	if err != nil {
		return err
	}

	dir := s.Path(directory)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	for _, f := range out {
		if err := s.writeFile(filepath.Join(dir, f.name), bytes.NewReader(f.data), int64(len(f.data))); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return nil
}

// ReadFile returns the contents of name inside directory.
func (s *FileSystemSink) ReadFile(directory, name string) ([]byte, error) {
	if err := checkDirectory(directory); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Path(directory), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s not found in %s", name, directory)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// ValidateSetup verifies that the sink root exists and is a directory.
func (s *FileSystemSink) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("sink root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sink root is not a directory: %s", s.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (s *FileSystemSink) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// checkDirectory rejects names that would escape the sink root.
func checkDirectory(directory string) error {
	if directory == "" || directory == "." || directory == ".." ||
		strings.ContainsAny(directory, `/\`) {
		return fmt.Errorf("invalid backup directory name: %q", directory)
	}
	return nil
}

// Compile-time check that FileSystemSink implements hb.Sink interface
var _ hb.Sink = (*FileSystemSink)(nil)
