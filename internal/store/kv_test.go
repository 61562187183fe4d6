package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobStore_LoadMissing(t *testing.T) {
	var fs FileBlobStore

	_, ok, err := fs.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileBlobStore_SaveLoad(t *testing.T) {
	var fs FileBlobStore
	key := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

	require.NoError(t, fs.Save(key, []byte(`{"a":1}`)))

	data, ok, err := fs.Load(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))

	// Overwrite replaces the previous content.
	require.NoError(t, fs.Save(key, []byte(`{"a":2}`)))
	data, _, err = fs.Load(key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))
}

func TestFileBlobStore_SaveLeavesNoTempFiles(t *testing.T) {
	var fs FileBlobStore
	dir := t.TempDir()
	key := filepath.Join(dir, "state.json")

	require.NoError(t, fs.Save(key, []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestMemoryBlobStore(t *testing.T) {
	ms := NewMemoryBlobStore()

	_, ok, err := ms.Load("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ms.Save("k", []byte("v1")))
	data, ok, err := ms.Load("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(data))

	// The store keeps its own copy of the saved bytes.
	buf := []byte("v2")
	require.NoError(t, ms.Save("k", buf))
	buf[0] = 'X'
	data, _, err = ms.Load("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
