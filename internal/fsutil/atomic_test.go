package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomicWrapsErrors(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes the rename fail.
	target := filepath.Join(dir, "taken")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))

	err := WriteFileAtomic(target, []byte("x"), 0)
	assert.ErrorIs(t, err, ErrAtomicWriteFailed)

	assert.ErrorIs(t, WriteFileAtomic("", nil, 0), ErrAtomicWriteFailed)
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	var missing map[string]int
	found, err := ReadJSON(path, &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 1}))

	var got map[string]int
	found, err = ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]int{"a": 1}, got)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, err = ReadJSON(path, &got)
	assert.Error(t, err)
}
