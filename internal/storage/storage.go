// Package storage archives finalized run tables to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	converrors "github.com/arkilian/fifotable/internal/errors"
)

// ErrUploadFailed wraps every failed upload.
var ErrUploadFailed = errors.New("upload failed")

// ObjectStorage is the subset of object storage the archive needs.
// Implementations are local filesystem and S3.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Exists reports whether objectPath is present.
	Exists(ctx context.Context, objectPath string) (bool, error)
}

// Archiver uploads run artefacts under a key prefix.
type Archiver struct {
	store  ObjectStorage
	prefix string
}

// NewArchiver creates an archiver writing below prefix.
func NewArchiver(store ObjectStorage, prefix string) *Archiver {
	return &Archiver{store: store, prefix: prefix}
}

// ObjectPath returns the object key for a local file.
func (a *Archiver) ObjectPath(localPath string) string {
	return path.Join(a.prefix, filepath.Base(localPath))
}

// Archive uploads each file, checks that the object is present and returns
// the object keys written, in order.
func (a *Archiver) Archive(ctx context.Context, localPaths ...string) ([]string, error) {
	keys := make([]string, 0, len(localPaths))
	for _, p := range localPaths {
		key := a.ObjectPath(p)
		if err := a.store.Upload(ctx, p, key); err != nil {
			return keys, converrors.NewArchiveError("failed to archive "+filepath.Base(p), err)
		}
		ok, err := a.store.Exists(ctx, key)
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s missing after upload", ErrUploadFailed, key)
		}
		if err != nil {
			return keys, converrors.NewArchiveError("failed to verify "+key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
