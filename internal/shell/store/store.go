package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open opens the database at dsn, creating parent directories as needed, and
// runs migrations.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, NewStoreError("Open", "", "", "create data dir: "+err.Error(), ErrConnectionFailed)
		}
	}

	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("Open", "", "", err.Error(), ErrConnectionFailed)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("Open", "", "", err.Error(), ErrConnectionFailed)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("store opened", "dsn", dsn)

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sqlx.DB) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{NoTxWrap: true})
	if err != nil {
		return NewStoreError("Migrate", "", "", err.Error(), ErrMigrationFailed)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return NewStoreError("Migrate", "", "", err.Error(), ErrMigrationFailed)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return NewStoreError("Migrate", "", "", err.Error(), ErrMigrationFailed)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return NewStoreError("Migrate", "", "", err.Error(), ErrMigrationFailed)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// Builds
// =============================================================================

// Build statuses.
const (
	BuildStatusRunning   = "running"
	BuildStatusSucceeded = "succeeded"
	BuildStatusFailed    = "failed"
)

// BuildRecord is one row of build history.
type BuildRecord struct {
	ID          int64  `db:"id"`
	ReferenceID string `db:"reference_id"`
	Name        string `db:"name"`
	Image       string `db:"image"`
	Entrypoint  string `db:"entrypoint"`
	Artifact    string `db:"artifact"`
	Status      string `db:"status"`
	Error       string `db:"error"`
	StartedAt   string `db:"started_at"`
	FinishedAt  string `db:"finished_at"`
}

// CreateBuild records the start of a build and returns its reference id.
func (s *Store) CreateBuild(ctx context.Context, name, image, entrypoint, artifact string) (string, error) {
	refID := "bld-" + uuid.New().String()[:8]
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (reference_id, name, image, entrypoint, artifact, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		refID, name, image, entrypoint, artifact, BuildStatusRunning, now(),
	)
	if err != nil {
		return "", NewStoreError("CreateBuild", "build", refID, err.Error(), err)
	}
	return refID, nil
}

// FinishBuild marks a build as succeeded or failed.
func (s *Store) FinishBuild(ctx context.Context, refID, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET status = ?, error = ?, finished_at = ? WHERE reference_id = ?`,
		status, errMsg, now(), refID,
	)
	if err != nil {
		return NewStoreError("FinishBuild", "build", refID, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("FinishBuild", "build", refID, "no such build", ErrNotFound)
	}
	return nil
}

// GetBuild returns one build by reference id.
func (s *Store) GetBuild(ctx context.Context, refID string) (*BuildRecord, error) {
	var b BuildRecord
	err := s.db.GetContext(ctx, &b, `SELECT * FROM builds WHERE reference_id = ?`, refID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetBuild", "build", refID, "no such build", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetBuild", "build", refID, err.Error(), err)
	}
	return &b, nil
}

// ListBuilds returns the most recent builds, newest first.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var builds []BuildRecord
	err := s.db.SelectContext(ctx, &builds, `SELECT * FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, NewStoreError("ListBuilds", "build", "", err.Error(), err)
	}
	return builds, nil
}

// =============================================================================
// File Hash Cache
// =============================================================================

// CachedHash looks up a previously computed digest for a file. A hit requires
// the size and mtime to match what was recorded.
func (s *Store) CachedHash(ctx context.Context, path string, size, mtime int64) (string, bool, error) {
	var digest string
	err := s.db.GetContext(ctx, &digest,
		`SELECT sha256 FROM file_hashes WHERE path = ? AND size = ? AND mtime = ?`,
		path, size, mtime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, NewStoreError("CachedHash", "file_hash", path, err.Error(), err)
	}
	return digest, true, nil
}

// SaveHash upserts a file's digest into the cache.
func (s *Store) SaveHash(ctx context.Context, path string, size, mtime int64, digest string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_hashes (path, size, mtime, sha256, scanned_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET size = excluded.size, mtime = excluded.mtime,
		 sha256 = excluded.sha256, scanned_at = excluded.scanned_at`,
		path, size, mtime, digest, now(),
	)
	if err != nil {
		return NewStoreError("SaveHash", "file_hash", path, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Scan Runs
// =============================================================================

// ScanRun summarizes one duplicate-finder run.
type ScanRun struct {
	ID          int64  `db:"id"`
	ReferenceID string `db:"reference_id"`
	Root        string `db:"root"`
	FilesHashed int64  `db:"files_hashed"`
	Duplicates  int64  `db:"duplicates"`
	WastedBytes int64  `db:"wasted_bytes"`
	Deleted     int64  `db:"deleted"`
	StartedAt   string `db:"started_at"`
	FinishedAt  string `db:"finished_at"`
}

// RecordScanRun writes a completed scan run and returns its reference id.
func (s *Store) RecordScanRun(ctx context.Context, run ScanRun) (string, error) {
	refID := "scn-" + uuid.New().String()[:8]
	if run.StartedAt == "" {
		run.StartedAt = now()
	}
	if run.FinishedAt == "" {
		run.FinishedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (reference_id, root, files_hashed, duplicates, wasted_bytes, deleted, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		refID, run.Root, run.FilesHashed, run.Duplicates, run.WastedBytes, run.Deleted, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return "", NewStoreError("RecordScanRun", "scan_run", refID, err.Error(), err)
	}
	return refID, nil
}

// ListScanRuns returns recent scan runs, newest first.
func (s *Store) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []ScanRun
	err := s.db.SelectContext(ctx, &runs, `SELECT * FROM scan_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, NewStoreError("ListScanRuns", "scan_run", "", err.Error(), err)
	}
	return runs, nil
}
