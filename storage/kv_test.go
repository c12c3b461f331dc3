package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type kvRecord struct {
	Name  string
	Value string
	Count uint64
}

func TestKVStoreRoundTrip(t *testing.T) {
	kv := NewKVStore(NewMemDB())
	stored := kvRecord{Name: "ceiling", Value: "1000000000000000000", Count: 3}
	require.NoError(t, kv.KVPut([]byte("pool/params"), stored))

	var loaded kvRecord
	ok, err := kv.KVGet([]byte("pool/params"), &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stored, loaded)
}

func TestKVGetMissingKey(t *testing.T) {
	kv := NewKVStore(NewMemDB())
	var out kvRecord
	ok, err := kv.KVGet([]byte("absent"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVPutOverwrites(t *testing.T) {
	kv := NewKVStore(NewMemDB())
	require.NoError(t, kv.KVPut([]byte("k"), kvRecord{Name: "a", Count: 1}))
	require.NoError(t, kv.KVPut([]byte("k"), kvRecord{Name: "b", Count: 2}))

	var loaded kvRecord
	ok, err := kv.KVGet([]byte("k"), &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", loaded.Name)
	require.Equal(t, uint64(2), loaded.Count)
}

func TestMemDBDefensiveCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte{1, 2, 3}
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 9

	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, stored)

	stored[1] = 9
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, again)
}

func TestMemDBHasAndNotFound(t *testing.T) {
	db := NewMemDB()
	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	ok, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
}
