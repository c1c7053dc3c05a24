// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flare-crawler/internal/archive"
	"github.com/JakeFAU/flare-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive", "pages")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestWritePage(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	page := archive.Page{RunID: "run-1", Number: 1, HTML: "<tr></tr>"}

	t.Run("NestedPath", func(t *testing.T) {
		path := "run-1/page-0001.html"
		uri, err := store.WritePage(context.Background(), path, page)
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "<tr></tr>", string(got))
	})

	t.Run("WriteOnce", func(t *testing.T) {
		path := "run-2/page-0001.html"
		_, err := store.WritePage(context.Background(), path, page)
		require.NoError(t, err)
		_, err = store.WritePage(context.Background(), path, archive.Page{RunID: "run-2", Number: 1, HTML: "other"})
		assert.True(t, errors.Is(err, archive.ErrPageExists))

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "<tr></tr>", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.WritePage(context.Background(), "", page)
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.WritePage(context.Background(), "../escape.html", page)
		assert.Error(t, err)
	})
}
