package fingerprint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"titlemonitor/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases must
// be cleared with "titlemonitor state clear" or deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLite is a durable Store. Storage errors are logged and Observe then
// reports a change, so a failing database never suppresses a dispatch.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens or creates the fingerprint database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLite{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "fingerprint"),
		now:    time.Now,
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'titlemonitor state clear' or delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLite) Observe(key string, raw []byte) bool {
	digest := Digest(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.observe(context.Background(), key, digest)
	if err != nil {
		logging.WarnWithContext(s.logger, "fingerprint lookup failed", "fingerprint_store_failed",
			logging.String(logging.FieldRecordKey, key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory and disk space"),
			logging.String(logging.FieldImpact, "content treated as changed and sent again"),
		)
		return true
	}
	return changed
}

func (s *SQLite) observe(ctx context.Context, key, digest string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT digest FROM fingerprints WHERE key = ?", key).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("select fingerprint: %w", err)
	case stored == digest:
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (key, digest, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET digest = excluded.digest, updated_at = excluded.updated_at`,
		key, digest, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("upsert fingerprint: %w", err)
	}
	return true, nil
}

func (s *SQLite) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM fingerprints WHERE key = ?", key); err != nil {
		logging.WarnWithContext(s.logger, "fingerprint delete failed", "fingerprint_store_failed",
			logging.String(logging.FieldRecordKey, key),
			logging.Error(err),
		)
	}
}

func (s *SQLite) Len() int {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM fingerprints").Scan(&count); err != nil {
		logging.WarnWithContext(s.logger, "fingerprint count failed", "fingerprint_store_failed", logging.Error(err))
		return 0
	}
	return count
}

func (s *SQLite) Entries() []Entry {
	entries, err := s.List(context.Background())
	if err != nil {
		logging.WarnWithContext(s.logger, "fingerprint listing failed", "fingerprint_store_failed", logging.Error(err))
		return nil
	}
	return entries
}

// List returns every stored fingerprint sorted by key.
func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, digest, updated_at FROM fingerprints ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			updated string
		)
		if err := rows.Scan(&entry.Key, &entry.Digest, &updated); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, updated); parseErr == nil {
			entry.UpdatedAt = ts
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return entries, nil
}

// Clear removes every fingerprint and returns how many were dropped.
func (s *SQLite) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM fingerprints")
	if err != nil {
		return 0, fmt.Errorf("clear fingerprints: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}
