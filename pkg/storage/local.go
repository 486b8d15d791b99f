package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/pkg/utils"
)

// LocalStore writes documents below a root directory.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &LocalStore{root: abs, logger: logging.OrDiscard(logger)}, nil
}

// Save writes content to root/path, creating parent directories. The path is
// sanitised so it cannot leave root. The file is written to a temporary name
// and renamed into place.
func (s *LocalStore) Save(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := utils.SanitizePath(path)
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return storageError(rel, "create directory for", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".docsmith-*")
	if err != nil {
		return storageError(rel, "create temp file for", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return storageError(rel, "write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return storageError(rel, "close", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return storageError(rel, "rename", err)
	}
	_ = os.Chmod(full, 0o644)

	s.logger.Debug("saved document", "path", full, "bytes", len(content))
	return nil
}

// Close is a no-op.
func (s *LocalStore) Close() error { return nil }

// Location returns the root directory.
func (s *LocalStore) Location() string { return s.root }
