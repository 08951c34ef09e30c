package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const statusFilePermissions = 0600

// FileStore keeps the current state as plain text in a single file
// ("ON", "OFF" or "ON-PULSE").
//
// Writes go to a temporary file in the same directory which is synced and
// renamed over the target, so readers never see a truncated value.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the status file location.
func (f *FileStore) Path() string {
	return f.path
}

// Read returns the persisted state.
func (f *FileStore) Read(_ context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrStateUnset
	}
	if err != nil {
		return "", fmt.Errorf("reading status file: %w", err)
	}
	return ParseState(strings.TrimSpace(string(data)))
}

// Write atomically replaces the status file.
func (f *FileStore) Write(_ context.Context, st State) error {
	if _, err := ParseState(string(st)); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp status file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after successful rename

	if _, err := tmp.WriteString(string(st)); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("writing temp status file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("syncing temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp status file: %w", err)
	}
	if err := os.Chmod(tmpName, statusFilePermissions); err != nil {
		return fmt.Errorf("setting status file permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing status file: %w", err)
	}
	return nil
}
