package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheGetSetDelete(t *testing.T) {
	c := NewTTLCache[int](time.Minute, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 42, 0)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[string](time.Minute, time.Minute)
	c.Set("a", "x", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestMemoryStoreJSON(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	_, ok, err := GetJSON[payload](ctx, store, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, store, "k", payload{Name: "room-101", Count: 2}, 0))
	got, ok, err := GetJSON[payload](ctx, store, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "room-101", Count: 2}, got)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreCopiesValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	raw := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", raw, 0))
	raw[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "contract:1:2", Key("contract", "1", " ", "2"))
	assert.Equal(t, "", Key())
}
