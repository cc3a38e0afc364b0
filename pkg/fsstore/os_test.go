package fsstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *OSStore {
	t.Helper()
	return NewOSStore(t.TempDir(), nil)
}

func TestOSStoreWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	f, err := store.Open("/note.txt", true)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = store.Open("/note.txt", false)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, f.Close())
}

func TestOSStoreOpenMissingReadOnlyIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Open("/missing.txt", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOSStoreListSortedExcludingDotEntries(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Mkdir("/sub"))
	for _, name := range []string{"b.txt", "a.txt", "c.txt"} {
		f, err := store.Open("/"+name, true)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	entries, total, err := store.List("/", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), total)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "sub"}, names)
}

func TestOSStoreListPagination(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"a", "b", "c"} {
		f, err := store.Open("/"+name, true)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	entries, total, err := store.List("/", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Name)
}

func TestOSStoreMkdirRmdir(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Mkdir("/sub"))

	entry, err := store.Stat("/sub")
	require.NoError(t, err)
	assert.True(t, entry.IsDir)

	require.NoError(t, store.Rmdir("/sub"))
	_, err = store.Stat("/sub")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOSStoreRmdirOnFileReturnsNotDir(t *testing.T) {
	store := newTestStore(t)
	f, err := store.Open("/file.txt", true)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = store.Rmdir("/file.txt")
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestOSStoreUnlinkOnDirReturnsIsDir(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Mkdir("/sub"))

	err := store.Unlink("/sub")
	assert.ErrorIs(t, err, ErrIsDir)
}

func TestOSStoreUnlink(t *testing.T) {
	store := newTestStore(t)
	f, err := store.Open("/file.txt", true)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.Unlink("/file.txt"))
	_, err = store.Stat("/file.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOSStoreResolveConfinesEscapeToRoot(t *testing.T) {
	store := newTestStore(t)
	full, err := store.resolve("../../etc/passwd")
	require.NoError(t, err, "a leading-slash Clean collapses the traversal before it can escape root")
	assert.Equal(t, filepath.Join(store.root, "etc", "passwd"), full)
}

func TestOSStoreSeek(t *testing.T) {
	store := newTestStore(t)
	f, err := store.Open("/note.txt", true)
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := f.Seek(3, os.SEEK_SET)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	buf := make([]byte, 2)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "34", string(buf[:n]))
	require.NoError(t, f.Close())
}
