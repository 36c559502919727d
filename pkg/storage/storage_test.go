package storage_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pharmacy/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var images = []string{".png", ".jpg"}

func TestLocal_SaveAndDelete(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir(), 1024)
	require.NoError(t, err)

	path, err := store.Save("categories", "Photo.PNG", strings.NewReader("png-bytes"), images)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "categories/"))
	assert.True(t, strings.HasSuffix(path, ".png"))
	assert.True(t, store.Exists(path))

	require.NoError(t, store.Delete(path))
	assert.False(t, store.Exists(path))
	assert.NoError(t, store.Delete(path))
}

func TestLocal_Rejects(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = store.Save("x", "run.exe", strings.NewReader("x"), images)
	assert.ErrorIs(t, err, storage.ErrUnsupportedType)

	_, err = store.Save("x", "big.png", bytes.NewReader(make([]byte, 10)), images)
	assert.ErrorIs(t, err, storage.ErrTooLarge)

	// folder cannot escape the root
	path, err := store.Save("../../etc", "a.png", strings.NewReader("ok"), images)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "etc/"))
}

func TestLocal_Locate(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewLocal(root, 1024)
	require.NoError(t, err)

	path, err := store.Save("prescriptions/cust-1", "scan.png", strings.NewReader("png"), images)
	require.NoError(t, err)

	full, err := store.Locate(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, path), full)

	_, err = store.Locate("prescriptions/cust-1")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = store.Locate("prescriptions/cust-1/missing.png")
	assert.ErrorIs(t, err, os.ErrNotExist)

	// paths cannot climb out of the root
	full, err = store.Locate("../../" + path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, path), full)
	assert.Equal(t, filepath.Join(root, "products"), store.Sub("../products"))
}
