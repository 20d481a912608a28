package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Source string  `json:"source"`
	Visits int64   `json:"visits"`
	Share  float64 `json:"percentage"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ttl), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	var got []payload
	hit, err := c.Get(ctx, "referrers:30:10", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	want := []payload{{Source: "google.com", Visits: 3, Share: 60}}
	require.NoError(t, c.Set(ctx, "referrers:30:10", want))
	assert.True(t, mr.Exists("cms:analytics:referrers:30:10"))

	hit, err = c.Get(ctx, "referrers:30:10", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "dashboard", map[string]int{"visits": 1}))
	mr.FastForward(31 * time.Second)

	var got map[string]int
	hit, err := c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_Errors(t *testing.T) {
	t.Run("Corrupt Value", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		require.NoError(t, mr.Set("cms:analytics:devices", "not-json"))

		var got map[string]int
		hit, err := c.Get(context.Background(), "devices", &got)
		assert.Error(t, err)
		assert.False(t, hit)
	})

	t.Run("Server Down", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		mr.Close()

		var got map[string]int
		_, err := c.Get(context.Background(), "devices", &got)
		assert.Error(t, err)
		assert.Error(t, c.Set(context.Background(), "devices", got))
	})

	t.Run("Unencodable Value", func(t *testing.T) {
		c, _ := newTestCache(t, time.Minute)
		err := c.Set(context.Background(), "bad", make(chan int))
		assert.Error(t, err)
	})
}
