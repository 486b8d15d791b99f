package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/docsmith/internal/config"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

func TestLocalStoreSave(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "guide/intro.md", []byte("# Intro")))
	require.NoError(t, s.Save(ctx, "guide/intro.md", []byte("# Intro v2")))

	data, err := os.ReadFile(filepath.Join(root, "guide", "intro.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Intro v2", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "guide"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(filepath.Join(root, "out"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "../../escape?.md", []byte("x")))

	_, err = os.Stat(filepath.Join(root, "out", "escape.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "escape.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStoreFailure(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, nil)
	require.NoError(t, err)

	// A file where a directory is needed.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocked"), []byte("x"), 0o644))

	err = s.Save(context.Background(), "blocked/page.md", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorageFailed)
}

func TestSQLiteStore(t *testing.T) {
	file := filepath.Join(t.TempDir(), "db", "docs.db")
	s, err := OpenSQLiteStore(file, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "b.md", []byte("B")))
	require.NoError(t, s.Save(ctx, "/a/index.md", []byte("A")))
	require.NoError(t, s.Save(ctx, "b.md", []byte("B2")))

	paths, err := s.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/index.md", "b.md"}, paths)

	doc, err := s.Get(ctx, "b.md")
	require.NoError(t, err)
	assert.Equal(t, "B2", string(doc.Content))
	assert.Equal(t, file, s.Location())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	local, err := Open(config.StorageConfig{Type: "local", Path: dir}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, local)

	db, err := Open(config.StorageConfig{Type: "sqlite", Path: dir, SQLiteFile: "docs.db"}, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, filepath.Join(dir, "docs.db"), db.Location())

	_, err = Open(config.StorageConfig{Type: "s3"}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
