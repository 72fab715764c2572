package pebble

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/go-logr/logr/testr"

	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := New(dir, kserde.String, kserde.Int64)
	assert.NoError(t, err)

	assert.NoError(t, store.Set(ctx, "b", 2))
	assert.NoError(t, store.Set(ctx, "a", 1))
	assert.NoError(t, store.Set(ctx, "c", 3))
	assert.NoError(t, store.Delete(ctx, "c"))

	v, ok, err := store.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	_, ok, err = store.Get(ctx, "c")
	assert.NoError(t, err)
	assert.False(t, ok)

	var keys []string
	for k := range store.All(ctx) {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.NoError(t, store.Close())

	// State survives a reopen.
	store, err = New(dir, kserde.String, kserde.Int64)
	assert.NoError(t, err)
	v, ok, err = store.Get(ctx, "b")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
	assert.NoError(t, store.Close())
}

func TestBackend(t *testing.T) {
	b, err := Open("mem", WithInMemory())
	assert.NoError(t, err)
	defer b.Close()

	_, err = b.Get([]byte("missing"))
	assert.IsError(t, err, kstate.ErrKeyNotFound)

	assert.NoError(t, b.Set([]byte("k"), []byte("v")))
	got, err := b.Get([]byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestSkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	b, err := Open("mem", WithInMemory())
	assert.NoError(t, err)

	assert.NoError(t, b.Set([]byte("bad"), []byte{1}))
	assert.NoError(t, b.Set([]byte("good"), []byte{0, 0, 0, 0, 0, 0, 0, 9}))

	store := kstate.NewTyped(b, kserde.String, kserde.Int64, testr.New(t))
	got := map[string]int64{}
	for k, v := range store.All(ctx) {
		got[k] = v
	}
	assert.Equal(t, map[string]int64{"good": 9}, got)
	assert.NoError(t, store.Close())
}
