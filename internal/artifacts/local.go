package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

type LocalStorage struct {
	baseDir string
}

func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

func (l *LocalStorage) Save(_ context.Context, key string, body io.Reader) error {
	path := l.Location(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func (l *LocalStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.Location(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Location returns the filesystem path for key. Absolute keys are used as is.
func (l *LocalStorage) Location(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(l.baseDir, filepath.FromSlash(key))
}
