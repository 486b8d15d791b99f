package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/pkg/utils"
)

// SQLiteStore keeps documents in a single SQLite file, one row per path.
type SQLiteStore struct {
	db     *sql.DB
	file   string
	logger *slog.Logger
}

// Document is a stored row.
type Document struct {
	Path      string
	Content   []byte
	UpdatedAt time.Time
}

// OpenSQLiteStore opens or creates the database file.
func OpenSQLiteStore(file string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", file+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{db: db, file: file, logger: logging.OrDiscard(logger)}, nil
}

// Save inserts or replaces the document at path.
func (s *SQLiteStore) Save(ctx context.Context, path string, content []byte) error {
	rel := utils.SanitizePath(path)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO documents (path, content, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		rel, content, time.Now().UTC())
	if err != nil {
		return storageError(rel, "insert", err)
	}
	s.logger.Debug("saved document", "db", s.file, "path", rel, "bytes", len(content))
	return nil
}

// Get returns the document stored at path, or sql.ErrNoRows.
func (s *SQLiteStore) Get(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT path, content, updated_at FROM documents WHERE path = ?`, utils.SanitizePath(path))
	var d Document
	if err := row.Scan(&d.Path, &d.Content, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Paths lists stored paths in order.
func (s *SQLiteStore) Paths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Location returns the database file.
func (s *SQLiteStore) Location() string { return s.file }
