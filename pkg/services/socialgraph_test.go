package services

import (
	"context"
	"testing"
	"time"

	"socialfeed/pkg/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestFolloweesCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Should miss for users that were never cached", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		ids, err := readFollowees(ctx, rdb, 1)
		require.NoError(t, err)
		assert.Nil(t, ids)
	})

	t.Run("Should order followees by follow time", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		followees := []FolloweeInfo{
			{FollowID: 11, FolloweeID: 3, Timestamp: 200},
			{FollowID: 10, FolloweeID: 2, Timestamp: 100},
		}
		require.NoError(t, writeFollowees(ctx, rdb, 1, followees, time.Minute))

		ids, err := readFollowees(ctx, rdb, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids)
	})

	t.Run("Should expire the follow set", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		require.NoError(t, writeFollowees(ctx, rdb, 1, []FolloweeInfo{{FolloweeID: 2, Timestamp: 100}}, time.Minute))
		assert.Equal(t, time.Minute, mr.TTL(storage.FolloweesKey(1)))

		mr.FastForward(time.Minute)
		ids, err := readFollowees(ctx, rdb, 1)
		require.NoError(t, err)
		assert.Nil(t, ids)
	})

	t.Run("Should replace a stale follow set", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		require.NoError(t, writeFollowees(ctx, rdb, 1, []FolloweeInfo{{FolloweeID: 2, Timestamp: 100}, {FolloweeID: 3, Timestamp: 200}}, time.Minute))
		require.NoError(t, writeFollowees(ctx, rdb, 1, []FolloweeInfo{{FolloweeID: 4, Timestamp: 300}}, time.Minute))

		ids, err := readFollowees(ctx, rdb, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{4}, ids)
	})

	t.Run("Should clear the follow set of a user that follows nobody", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		require.NoError(t, writeFollowees(ctx, rdb, 1, []FolloweeInfo{{FolloweeID: 2, Timestamp: 100}}, time.Minute))
		require.NoError(t, writeFollowees(ctx, rdb, 1, nil, time.Minute))

		ids, err := readFollowees(ctx, rdb, 1)
		require.NoError(t, err)
		assert.Nil(t, ids)
	})
}
