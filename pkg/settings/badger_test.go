package settings

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badgelink/badgelink/internal/wire"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStoreWriteReadRoundTrip(t *testing.T) {
	store := NewBadgerStore(newTestDB(t), nil)

	v := wire.Value{Type: wire.ValueU32, U64: 42}
	require.NoError(t, store.Write("net", "timeout", v))

	got, err := store.Read("net", "timeout")
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestBadgerStoreReadMissingIsNotFound(t *testing.T) {
	store := NewBadgerStore(newTestDB(t), nil)
	_, err := store.Read("net", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStoreDelete(t *testing.T) {
	store := NewBadgerStore(newTestDB(t), nil)
	require.NoError(t, store.Write("net", "timeout", wire.Value{Type: wire.ValueU8, U64: 1}))

	require.NoError(t, store.Delete("net", "timeout"))
	_, err := store.Read("net", "timeout")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete("net", "timeout")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStoreListFiltersByNamespaceAndPages(t *testing.T) {
	store := NewBadgerStore(newTestDB(t), nil)
	require.NoError(t, store.Write("net", "a", wire.Value{Type: wire.ValueU8, U64: 1}))
	require.NoError(t, store.Write("net", "b", wire.Value{Type: wire.ValueU8, U64: 2}))
	require.NoError(t, store.Write("other", "c", wire.Value{Type: wire.ValueU8, U64: 3}))

	entries, total, err := store.List("net", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Key)

	all, total, err := store.List("", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), total)
	assert.Len(t, all, 3)

	paged, total, err := store.List("", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), total, "total reflects all matches regardless of the page size")
	assert.Len(t, paged, 1)
}
