// Package storage provides destinations for converted Markdown documents.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/amosWeiskopf/docsmith/internal/config"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

// Saver stores one document under a relative path.
type Saver interface {
	Save(ctx context.Context, path string, content []byte) error
}

// Store is a Saver that holds resources.
type Store interface {
	Saver
	Close() error
	// Location describes where documents end up, for logs and reports.
	Location() string
}

// Open builds the Store selected by cfg.Type.
func Open(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.Path, logger)
	case "sqlite":
		file := cfg.SQLiteFile
		if !filepath.IsAbs(file) && cfg.Path != "" {
			file = filepath.Join(cfg.Path, file)
		}
		return OpenSQLiteStore(file, logger)
	default:
		return nil, models.NewCrawlError(models.KindInvalidInput, "", fmt.Sprintf("unknown storage type %q", cfg.Type), nil)
	}
}

func storageError(path, reason string, err error) error {
	return models.NewCrawlError(models.KindStorageFailed, "", reason+" "+path, err)
}
