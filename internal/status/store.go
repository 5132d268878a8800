// Package status persists the current job status per repository.
package status

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sha1n/relic-digest/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store is a key-value store of StatusRecords keyed by repository identity.
// Put overwrites any previous record for the same repository.
type Store interface {
	Get(ctx context.Context, repository string) (domain.StatusRecord, bool, error)
	Put(ctx context.Context, rec domain.StatusRecord) error
	List(ctx context.Context) ([]domain.StatusRecord, error)
	Close() error
}

// Open creates the store for backend under dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(filepath.Join(dir, StatusFilename))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, SQLiteFilename))
	default:
		return nil, fmt.Errorf("unknown status backend: %s", backend)
	}
}

func validate(rec domain.StatusRecord) error {
	if rec.Repository == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", rec.Status)
	}
	return nil
}
