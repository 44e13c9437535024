package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoCache(t *testing.T) {
	config := LocalConfig{
		MaxSize:           100,
		DefaultExpiration: 5 * time.Minute,
		CleanupInterval:   10 * time.Minute,
	}

	c := NewGoCache(config)
	defer c.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "test_key", "test_value", time.Minute))

		value, ok := c.Get(ctx, "test_key")
		require.True(t, ok)
		assert.Equal(t, "test_value", value)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", "v", 10*time.Millisecond))
		time.Sleep(30 * time.Millisecond)

		_, ok := c.Get(ctx, "short")
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "doomed", "v", time.Minute))
		require.NoError(t, c.Delete(ctx, "doomed"))
		assert.False(t, c.Exists(ctx, "doomed"))
	})

	t.Run("GetWithTTL", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "ttl_key", "v", time.Minute))

		_, ttl, ok := c.GetWithTTL(ctx, "ttl_key")
		require.True(t, ok)
		assert.Greater(t, ttl, 50*time.Second)
	})
}

func TestLRUCache(t *testing.T) {
	config := LocalConfig{
		MaxSize:           2,
		DefaultExpiration: time.Minute,
	}

	c := NewLRUCache(config)
	defer c.Close()

	ctx := context.Background()

	t.Run("EvictsOldest", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "a", 1, 0))
		require.NoError(t, c.Set(ctx, "b", 2, 0))
		require.NoError(t, c.Set(ctx, "c", 3, 0))

		assert.False(t, c.Exists(ctx, "a"))
		assert.True(t, c.Exists(ctx, "b"))
		assert.True(t, c.Exists(ctx, "c"))
	})

	t.Run("PerEntryTTL", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", "v", 10*time.Millisecond))
		time.Sleep(30 * time.Millisecond)

		_, ok := c.Get(ctx, "short")
		assert.False(t, ok)
	})
}

func TestFactory(t *testing.T) {
	c, err := NewCache(Config{Type: "gocache"})
	require.NoError(t, err)
	c.Close()

	c, err = NewCache(Config{Type: "lru", Local: LocalConfig{MaxSize: 10}})
	require.NoError(t, err)
	c.Close()

	_, err = NewCache(Config{Type: "bogus"})
	assert.Error(t, err)
}
