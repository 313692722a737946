package mirror

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func writeTestFile(t *testing.T, dir, relPath, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))

	return fullPath
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

// ---------------------------------------------------------------------------
// CopyFile
// ---------------------------------------------------------------------------

func TestCopyFile_CreatesParentsAndKeepsMtime(t *testing.T) {
	t.Parallel()

	src := writeTestFile(t, t.TempDir(), "a.txt", "hello")
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dst := filepath.Join(t.TempDir(), "deep", "er", "a.txt")

	copied, err := osFileOps{}.CopyFile(src, dst)
	require.NoError(t, err)
	assert.True(t, copied)
	assert.Equal(t, "hello", readTestFile(t, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	_, err = os.Stat(dst + partialSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist, "partial file must not survive")
}

func TestCopyFile_OverwritesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	dst := writeTestFile(t, t.TempDir(), "a.txt", "old content that is longer")
	src := writeTestFile(t, srcDir, "a.txt", "new")

	for range 2 {
		copied, err := osFileOps{}.CopyFile(src, dst)
		require.NoError(t, err)
		assert.True(t, copied)
		assert.Equal(t, "new", readTestFile(t, dst))
	}
}

func TestCopyFile_SourceVanished(t *testing.T) {
	t.Parallel()

	dst := filepath.Join(t.TempDir(), "a.txt")

	copied, err := osFileOps{}.CopyFile(filepath.Join(t.TempDir(), "missing"), dst)
	require.NoError(t, err)
	assert.False(t, copied)

	_, err = os.Stat(dst)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// ---------------------------------------------------------------------------
// CopyTree / Remove / RemoveTree
// ---------------------------------------------------------------------------

func TestCopyTree(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTestFile(t, src, "x/a.txt", "a")
	writeTestFile(t, src, "x/y/b.txt", "b")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "x", "empty"), 0o755))

	dst := filepath.Join(t.TempDir(), "x")

	copied, err := osFileOps{}.CopyTree(filepath.Join(src, "x"), dst)
	require.NoError(t, err)
	assert.True(t, copied)

	assert.Equal(t, "a", readTestFile(t, filepath.Join(dst, "a.txt")))
	assert.Equal(t, "b", readTestFile(t, filepath.Join(dst, "y", "b.txt")))
	assert.DirExists(t, filepath.Join(dst, "empty"))
}

func TestCopyTree_SourceVanished(t *testing.T) {
	t.Parallel()

	copied, err := osFileOps{}.CopyTree(filepath.Join(t.TempDir(), "gone"), filepath.Join(t.TempDir(), "x"))
	require.NoError(t, err)
	assert.False(t, copied)
}

func TestRemove_AbsentIsSkipped(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, t.TempDir(), "a.txt", "a")

	removed, err := osFileOps{}.Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = osFileOps{}.Remove(path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveTree_AbsentIsSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, "x/y/z.txt", "z")

	removed, err := osFileOps{}.RemoveTree(filepath.Join(dir, "x"))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoDirExists(t, filepath.Join(dir, "x"))

	removed, err = osFileOps{}.RemoveTree(filepath.Join(dir, "x"))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIsDirectory_PrefersTarget(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()

	// Deleted source directory whose mirror still exists.
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "gone"), 0o755))
	assert.True(t, isDirectory(filepath.Join(dst, "gone"), filepath.Join(src, "gone")))

	// New source directory not mirrored yet.
	require.NoError(t, os.MkdirAll(filepath.Join(src, "new"), 0o755))
	assert.True(t, isDirectory(filepath.Join(dst, "new"), filepath.Join(src, "new")))

	// Neither side exists.
	assert.False(t, isDirectory(filepath.Join(dst, "nothing"), filepath.Join(src, "nothing")))
}
