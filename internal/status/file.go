package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/gitrepos"
)

const (
	// StatusFileVersion is the current schema version
	StatusFileVersion = 1

	// StatusFilename is the default status filename
	StatusFilename = "status.json"

	// fileLockWait bounds how long a Put waits for another writer of the same file.
	fileLockWait = 10 * time.Second
)

// statusFile is the on-disk layout.
type statusFile struct {
	Version int                            `json:"version"`
	Jobs    map[string]domain.StatusRecord `json:"jobs"`
}

// FileStore keeps all records in one JSON file. Reads always go to the file, and
// every Put re-reads, merges and rewrites it under a flock next to the file, so
// processes sharing a workspace see each other's records.
type FileStore struct {
	path     string
	lockPath string
	mu       sync.Mutex
	now      func() time.Time
}

// NewFileStore opens the store at path. A missing file is an empty store; an
// unreadable one is an error.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		lockPath: path + ".lock",
		now:      time.Now,
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, repository string) (domain.StatusRecord, bool, error) {
	jobs, err := s.load()
	if err != nil {
		return domain.StatusRecord{}, false, err
	}
	rec, ok := jobs[repository]
	return rec, ok, nil
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, rec domain.StatusRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return gitrepos.WithFileLock(ctx, s.lockPath, fileLockWait, func() error {
		jobs, err := s.load()
		if err != nil {
			return err
		}
		jobs[rec.Repository] = rec
		return s.save(jobs)
	})
}

// List implements Store. Records are sorted by repository.
func (s *FileStore) List(_ context.Context) ([]domain.StatusRecord, error) {
	jobs, err := s.load()
	if err != nil {
		return nil, err
	}

	records := make([]domain.StatusRecord, 0, len(jobs))
	for _, rec := range jobs {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Repository < records[j].Repository })
	return records, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

// load reads the current file. Writers replace it by rename, so a read never sees
// a partial file.
func (s *FileStore) load() (map[string]domain.StatusRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]domain.StatusRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var f statusFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	if f.Jobs == nil {
		f.Jobs = make(map[string]domain.StatusRecord)
	}
	return f.Jobs, nil
}

// save writes the file using write-to-temp + rename. Callers hold the file lock.
func (s *FileStore) save(jobs map[string]domain.StatusRecord) error {
	data, err := json.MarshalIndent(statusFile{Version: StatusFileVersion, Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write status temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}
	return nil
}
