package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type price struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	t.Run("miss", func(t *testing.T) {
		var p price
		assert.ErrorIs(t, c.Get(ctx, "hive:median_price", &p), ErrCacheMiss)
	})

	t.Run("set get expire", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "hive:median_price", price{Base: "0.250 HBD", Quote: "1.000 HIVE"}, time.Minute))

		var p price
		require.NoError(t, c.Get(ctx, "hive:median_price", &p))
		assert.Equal(t, "0.250 HBD", p.Base)

		ok, err := c.Exists(ctx, "hive:median_price")
		require.NoError(t, err)
		assert.True(t, ok)

		now = now.Add(2 * time.Minute)
		assert.ErrorIs(t, c.Get(ctx, "hive:median_price", &p), ErrCacheMiss)
		ok, _ = c.Exists(ctx, "hive:median_price")
		assert.False(t, ok)
	})

	t.Run("invalidate pattern", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "hive:account:alice", 1, time.Hour))
		require.NoError(t, c.Set(ctx, "hive:account:bob", 2, time.Hour))
		require.NoError(t, c.Set(ctx, "hive:reward_fund", 3, time.Hour))

		require.NoError(t, c.InvalidatePattern(ctx, "hive:account:*"))

		var v int
		assert.ErrorIs(t, c.Get(ctx, "hive:account:alice", &v), ErrCacheMiss)
		require.NoError(t, c.Get(ctx, "hive:reward_fund", &v))
		assert.Equal(t, 3, v)
	})

	t.Run("stored values are copies", func(t *testing.T) {
		src := []string{"a"}
		require.NoError(t, c.Set(ctx, "list", src, time.Hour))
		src[0] = "changed"

		var got []string
		require.NoError(t, c.Get(ctx, "list", &got))
		assert.Equal(t, []string{"a"}, got)
	})
}
