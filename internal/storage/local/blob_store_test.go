// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crossword-scraper/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDirectory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "missing")
		_, err := local.New(local.Config{BaseDir: base, Prefix: "debug"})
		require.NoError(t, err)
		info, err := os.Stat(filepath.Join(base, "debug"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(tempFile, []byte("x"), 0o600))

		_, err := local.New(local.Config{BaseDir: tempFile})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir, Prefix: "artifacts"})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		path := "grid-debug/run-1/original.png"
		data := []byte("png bytes")
		uri, err := store.PutObject(context.Background(), path, "image/png", bytes.NewReader(data))
		require.NoError(t, err)

		fullPath := filepath.Join(tempDir, "artifacts", path)
		assert.Equal(t, "file://"+fullPath, uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(fullPath)
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("Overwrite", func(t *testing.T) {
		path := "grid-debug/run-1/grid_view.png"
		_, err := store.PutObject(context.Background(), path, "image/png", bytes.NewReader([]byte("one")))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), path, "image/png", bytes.NewReader([]byte("two")))
		require.NoError(t, err)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "artifacts", path))
		require.NoError(t, err)
		assert.Equal(t, "two", string(readData))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "image/png", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../../escape.png", "image/png", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})
}
