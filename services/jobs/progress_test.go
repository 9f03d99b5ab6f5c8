package jobs

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestCountArchiveFiles(t *testing.T) {
	t.Run("Counts root files and channel day files", func(t *testing.T) {
		path := writeTestZip(t, map[string]string{
			"users.json":              "[]",
			"channels.json":           "[]",
			"integration_logs.json":   "[]",
			"general/2025-01-01.json": "[]",
			"general/2025-01-02.json": "[]",
			"random/2025-01-01.json":  "[]",
			"random/notes.txt":        "x",
		})

		total, err := countArchiveFiles(path)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
	})

	t.Run("Tolerates a wrapper folder", func(t *testing.T) {
		path := writeTestZip(t, map[string]string{
			"myexport/users.json":              "[]",
			"myexport/channels.json":           "[]",
			"myexport/general/2025-01-01.json": "[]",
		})

		total, err := countArchiveFiles(path)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("Skips directory entries", func(t *testing.T) {
		path := writeTestZip(t, map[string]string{
			"general/":                "",
			"general/2025-01-01.json": "[]",
		})

		total, err := countArchiveFiles(path)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("Missing archives error out", func(t *testing.T) {
		_, err := countArchiveFiles(filepath.Join(t.TempDir(), "absent.zip"))
		assert.Error(t, err)
	})
}

func TestCountExtractedFiles(t *testing.T) {
	t.Run("Counts known root files and folder JSON", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"users.json", "channels.json", "dms.json", "stray.json"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644))
		}
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "general"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "random"), 0o755))
		for _, name := range []string{"general/2025-01-01.json", "general/2025-01-02.json", "random/2025-01-01.json", "random/notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644))
		}

		total, err := countExtractedFiles(dir)
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
	})

	t.Run("Missing directories error out", func(t *testing.T) {
		_, err := countExtractedFiles(filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, err)
	})

	t.Run("A plain file is not a directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		_, err := countExtractedFiles(path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestJobScopedTotalsEmpty(t *testing.T) {
	assert.True(t, jobScopedTotalsEmpty(nil))
	assert.True(t, jobScopedTotalsEmpty(map[string]any{}))
	assert.True(t, jobScopedTotalsEmpty(map[string]any{"emojis": float64(5)}))
	assert.True(t, jobScopedTotalsEmpty(map[string]any{
		"messages": float64(0), "reactions": float64(0), "attachments": float64(0),
	}))
	assert.False(t, jobScopedTotalsEmpty(map[string]any{"messages": float64(3)}))
	assert.False(t, jobScopedTotalsEmpty(map[string]any{"reactions": int64(1)}))
	assert.False(t, jobScopedTotalsEmpty(map[string]any{"attachments": float64(2), "emojis": float64(0)}))
}

func TestSplitArchivePath(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c.json"}, splitArchivePath("a/b/c.json"))
	assert.Equal(t, []string{"a", "b"}, splitArchivePath("/a//b/"))
	assert.Equal(t, []string{"users.json"}, splitArchivePath("users.json"))
	assert.Empty(t, splitArchivePath(""))
}
