package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage archives run files into a directory tree.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

// Upload copies localPath to key. The copy is synced under a temporary
// name in the destination directory and then renamed over key.
func (l *LocalStorage) Upload(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.copyFile(localPath, l.path(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

func (l *LocalStorage) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return err
	}
	committed = true
	return nil
}

// Exists reports whether key has been archived.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	switch _, err := os.Stat(l.path(key)); {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func (l *LocalStorage) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}
