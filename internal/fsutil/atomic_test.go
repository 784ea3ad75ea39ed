package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrom_CreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	n, err := WriteFrom(dir, "points.csv", strings.NewReader("pid,easting\n1,2\n"))
	require.NoError(t, err)
	assert.EqualValues(t, 16, n)

	data, err := os.ReadFile(filepath.Join(dir, "points.csv"))
	require.NoError(t, err)
	assert.Equal(t, "pid,easting\n1,2\n", string(data))
	assertOnlyFiles(t, dir, "points.csv")
}

func TestWriteFrom_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("old"), 0o644))

	_, err := WriteFrom(dir, "a.csv", strings.NewReader("new"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestWriteFrom_ReaderErrorLeavesNothing(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteFrom(dir, "a.csv", failingReader{})
	require.Error(t, err)
	assertOnlyFiles(t, dir)
}

func TestPendingFile_AbortAfterCommitIsNoop(t *testing.T) {
	dir := t.TempDir()
	p, err := Create(dir, "out.csv")
	require.NoError(t, err)

	_, err = p.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.Commit())
	p.Abort()

	assert.Equal(t, filepath.Join(dir, "out.csv"), p.Path())
	assertOnlyFiles(t, dir, "out.csv")
	require.Error(t, p.Commit())
}

func assertOnlyFiles(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, want, got)
}
