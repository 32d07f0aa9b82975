package localcart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// FileBackend stores the cart in a single JSON file. Writes go to a temp file
// that is renamed over the target, so a crash never leaves a torn cart.
type FileBackend struct {
	path string
	lock *sync.Mutex
}

// NewFileBackend creates a file backend rooted at path. The parent directory
// is created on first save.
func NewFileBackend(path string) *FileBackend {
	location := filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		location = abs
	}
	return &FileBackend{path: path, lock: storageLocks.get("file:" + location)}
}

func (f *FileBackend) Load(ctx context.Context) ([]byte, error) {
	return f.read()
}

func (f *FileBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	current, err := f.read()
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create local cart dir: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(next)); err != nil {
		return fmt.Errorf("write local cart: %w", err)
	}
	return nil
}

func (f *FileBackend) Delete(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove local cart: %w", err)
	}
	return nil
}

func (f *FileBackend) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local cart: %w", err)
	}
	return data, nil
}
