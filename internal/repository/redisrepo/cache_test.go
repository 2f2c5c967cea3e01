package redisrepo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestGetExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	key, genKey := UserUnreadCountKey("u1"), UserUnreadCountGenerationKey("u1")

	written, err := SetJSONIfGeneration(rdb, ctx, key, genKey, 0, 7, time.Minute)
	require.NoError(t, err)
	require.True(t, written)

	got, err := Get[int](rdb, ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 7, *got)

	mr.FastForward(2 * time.Minute)
	_, err = Get[int](rdb, ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestUserUnreadCountKey(t *testing.T) {
	assert.Equal(t, "user:abc-notifications-unread", UserUnreadCountKey("abc"))
	assert.Equal(t, "user:abc-notifications-unread-gen", UserUnreadCountGenerationKey("abc"))
}

func TestSetJSONIfGeneration(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	key, genKey := UserUnreadCountKey("u3"), UserUnreadCountGenerationKey("u3")

	gen, err := Generation(rdb, ctx, genKey)
	require.NoError(t, err)
	assert.Zero(t, gen)

	written, err := SetJSONIfGeneration(rdb, ctx, key, genKey, gen, 4, time.Minute)
	require.NoError(t, err)
	assert.True(t, written)

	require.NoError(t, Invalidate(rdb, ctx, key, genKey))
	assert.False(t, mr.Exists(key))

	// a reader that loaded its value before the invalidation must not write it
	written, err = SetJSONIfGeneration(rdb, ctx, key, genKey, gen, 4, time.Minute)
	require.NoError(t, err)
	assert.False(t, written)
	assert.False(t, mr.Exists(key))

	gen, err = Generation(rdb, ctx, genKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	written, err = SetJSONIfGeneration(rdb, ctx, key, genKey, gen, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := Get[int](rdb, ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, *got)
}
