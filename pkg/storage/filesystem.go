package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
	logger  *zap.Logger
	syncDir func(dir string) error

	mu     sync.Mutex
	tables map[string]*Table
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, logger: zap.NewNop(), syncDir: syncDir, tables: map[string]*Table{}}, nil
}

// SetLogger routes post-commit warnings to logger.
func (s *LocalStorage) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save atomically replaces filename with data: the bytes are written to a
// temporary sibling, fsynced, renamed over the target and the directory is
// fsynced. Readers observe either the old or the new content, never a mix.
// Once the rename succeeds the write is committed; a failed directory sync
// after that point is logged, not returned.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("replace %s: %w", filename, err)
	}
	committed = true
	if err := s.syncDir(dir); err != nil {
		s.logger.Warn("data directory sync failed after commit", zap.String("file", filename), zap.Error(err))
	}
	return filename, nil
}

// Read returns the stored bytes. A file that was never written yields
// (nil, nil); an existing empty file yields an empty non-nil slice.
func (s *LocalStorage) Read(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return data, nil
}

// Table returns the shared handle for the named file. Handles are cached so
// every caller in the process contends on the same in-process semaphore.
func (s *LocalStorage) Table(filename string, lockTimeout time.Duration) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[filename]; ok {
		return t
	}
	t := newTable(s, filename, lockTimeout)
	s.tables[filename] = t
	return t
}

// Path exposes the underlying path (useful for debugging).
func (s *LocalStorage) Path(filename string) string {
	return s.resolve(filename)
}

func (s *LocalStorage) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}
	defer d.Close() //nolint:errcheck
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync data directory: %w", err)
	}
	return nil
}
