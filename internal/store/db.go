package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const memoryDSN = ":memory:"

// SQLiteBackend keeps documents as rows of a single table, so all documents
// of one Save are committed together.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLite creates a backend for the database at dbPath.
// Use ":memory:" for in-memory databases (useful for testing).
func NewSQLite(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &SQLiteBackend{db: db, path: dbPath}, nil
}

// Init creates the parent directory, enables WAL mode and creates the schema.
func (s *SQLiteBackend) Init(ctx context.Context) error {
	if s.path != memoryDSN {
		if dir := filepath.Dir(s.path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return &IOError{Op: "failed to initialize history directory", Err: err}
			}
		}
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			return &IOError{Op: "failed to enable WAL mode", Err: err}
		}
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 2000"); err != nil {
		return &IOError{Op: "failed to set busy timeout", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &IOError{Op: "failed to create schema", Err: err}
	}
	return nil
}

// Load returns the stored body of doc. A database file or schema that does
// not exist yet reads as ErrNotFound.
func (s *SQLiteBackend) Load(ctx context.Context, doc Doc) ([]byte, error) {
	if s.path != memoryDSN {
		if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
	}

	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, string(doc)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &IOError{Op: "failed to read", Doc: doc, Err: err}
	}
	return body, nil
}

// Save upserts all records in one transaction.
func (s *SQLiteBackend) Save(ctx context.Context, records ...Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "failed to begin transaction", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return &IOError{Op: "failed to prepare statement", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, string(r.Doc), string(r.Data), now); err != nil {
			tx.Rollback() //nolint:errcheck
			return &IOError{Op: "failed to write", Doc: r.Doc, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &IOError{Op: "failed to commit", Err: err}
	}
	return nil
}

// Location returns the database path.
func (s *SQLiteBackend) Location() string { return s.path }

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *SQLiteBackend) DB() *sql.DB {
	return s.db
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
