package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citematch.log")
	w, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	require.NoError(t, w.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriter_AppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citematch.log")

	w, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

// smallRotatingWriter builds a writer with a 1-byte size budget so every
// write after the first rotates.
func smallRotatingWriter(t *testing.T, dir string, maxFiles int) *RotatingWriter {
	t.Helper()
	w, err := NewRotatingWriter(filepath.Join(dir, "citematch.log"), 0, maxFiles)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	w := smallRotatingWriter(t, dir, 5)

	_, err := w.Write([]byte("one\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)

	// "one" rotated into .1, "two" is current.
	current, err := os.ReadFile(filepath.Join(dir, "citematch.log"))
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(current))

	rotated, err := os.ReadFile(filepath.Join(dir, "citematch.log.1"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(rotated))
}

func TestRotatingWriter_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	w := smallRotatingWriter(t, dir, 2)

	for _, line := range []string{"a\n", "b\n", "c\n", "d\n", "e\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "citematch.log.*"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
	for _, m := range matches {
		suffix := strings.TrimPrefix(filepath.Base(m), "citematch.log.")
		assert.Contains(t, []string{"1", "2"}, suffix)
	}
}
