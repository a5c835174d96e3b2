package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileSlot stores the session as a JSON file. Writes go to a temp file that
// is renamed over the target, so a crash never leaves a half-written slot.
type FileSlot struct {
	mu   sync.Mutex
	path string
}

// NewFileSlot creates dir if needed and returns a slot for dir/name.
func NewFileSlot(dir, name string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir %s: %w", dir, err)
	}
	return &FileSlot{path: filepath.Join(dir, name)}, nil
}

func (f *FileSlot) Path() string {
	return f.path
}

func (f *FileSlot) Read(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot file %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileSlot) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp slot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp slot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp slot file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace slot file %s: %w", f.path, err)
	}
	return nil
}

func (f *FileSlot) Remove(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove slot file %s: %w", f.path, err)
	}
	return nil
}
