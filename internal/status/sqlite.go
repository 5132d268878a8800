package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sha1n/relic-digest/internal/domain"

	// pure Go driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

const (
	// SQLiteFilename is the default database filename
	SQLiteFilename = "status.db"

	driverName = "sqlite"

	schema = `
		CREATE TABLE IF NOT EXISTS job_status (
			repository TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			commit_sha TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`
)

// SQLiteStore keeps records in a single SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, repository string) (domain.StatusRecord, bool, error) {
	query := `SELECT repository, status, reason, commit_sha, updated_at FROM job_status WHERE repository = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, repository))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusRecord{}, false, nil
	}
	if err != nil {
		return domain.StatusRecord{}, false, fmt.Errorf("failed to read status for %s: %w", repository, err)
	}
	return rec, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec domain.StatusRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}

	query := `
		INSERT INTO job_status (repository, status, reason, commit_sha, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repository) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			commit_sha = excluded.commit_sha,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Repository, string(rec.Status), rec.Reason, rec.Commit, rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write status for %s: %w", rec.Repository, err)
	}
	return nil
}

// List implements Store. Records are sorted by repository.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.StatusRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT repository, status, reason, commit_sha, updated_at FROM job_status ORDER BY repository`)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.StatusRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.StatusRecord, error) {
	var rec domain.StatusRecord
	var status, updatedAt string
	if err := row.Scan(&rec.Repository, &status, &rec.Reason, &rec.Commit, &updatedAt); err != nil {
		return domain.StatusRecord{}, err
	}
	rec.Status = domain.JobStatus(status)

	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return domain.StatusRecord{}, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	rec.UpdatedAt = t
	return rec, nil
}
