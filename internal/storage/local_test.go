package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveAndRemove(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	path, err := store.Save("abc.wav", []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "abc.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Second remove is a no-op
	assert.NoError(t, store.Remove(path))
	assert.NoError(t, store.Remove(""))
}

func TestLocalStore_SaveRejectsBadNames(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape.wav", "sub/dir.wav", ".hidden"} {
		_, err := store.Save(name, []byte("x"))
		assert.Error(t, err, name)
	}
}

func TestLocalStore_RemoveOutsideDir(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "a"))
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "other.wav")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.Error(t, store.Remove(outside))
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestNewLocalStore_EmptyDir(t *testing.T) {
	_, err := NewLocalStore("")
	assert.Error(t, err)
}
