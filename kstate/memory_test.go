package kstate

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	store := NewMemory[string, int]()

	assert.NoError(t, store.Set(ctx, "b", 1))
	assert.NoError(t, store.Set(ctx, "a", 2))
	assert.NoError(t, store.Set(ctx, "b", 3))
	assert.NoError(t, store.Set(ctx, "c", 4))
	assert.NoError(t, store.Delete(ctx, "a"))
	assert.NoError(t, store.Delete(ctx, "missing"))

	v, ok, err := store.Get(ctx, "b")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok, err = store.Get(ctx, "a")
	assert.NoError(t, err)
	assert.False(t, ok)

	var keys []string
	for k, v := range store.All(ctx) {
		keys = append(keys, k)
		if k == "b" {
			// Deleting while iterating is allowed.
			assert.NoError(t, store.Delete(ctx, "c"))
			assert.Equal(t, 3, v)
		}
	}
	assert.Equal(t, []string{"b"}, keys)

	assert.NoError(t, store.Close())
	_, _, err = store.Get(ctx, "b")
	assert.IsError(t, err, ErrClosed)
	assert.IsError(t, store.Set(ctx, "b", 1), ErrClosed)
}
