package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/utils"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func lamp() *models.Item {
	return &models.Item{ID: utils.NewSixID(), Title: "Lamp", Price: decimal.RequireFromString("10.00")}
}

func TestItemKeys(t *testing.T) {
	id := utils.SixID{1, 2, 3, 4, 5, 6}
	assert.Equal(t, "item:"+id.String(), itemKey(id))
	assert.Equal(t, "itemgen:"+id.String(), itemGenKey(id))
}

func TestItemCache_UnavailableRedisIsAMiss(t *testing.T) {
	rdb := unreachableClient()
	defer rdb.Close()
	c := NewItemCache(rdb, time.Minute)
	ctx := context.Background()

	item := lamp()
	loads := 0
	got, err := c.Fill(ctx, item.ID, func(context.Context) (*models.Item, error) {
		loads++
		return item, nil
	})
	require.NoError(t, err)
	assert.Equal(t, item, got)
	assert.Equal(t, 1, loads)

	assert.NotPanics(t, func() { c.Invalidate(ctx, item.ID) })
	cached, ok := c.Get(ctx, item.ID)
	assert.False(t, ok)
	assert.Nil(t, cached)
}

func TestItemCache_FillPassesLoadErrors(t *testing.T) {
	rdb := unreachableClient()
	defer rdb.Close()
	boom := errors.New("boom")

	for _, ttl := range []time.Duration{0, time.Minute} {
		_, err := NewItemCache(rdb, ttl).Fill(context.Background(), utils.NewSixID(), func(context.Context) (*models.Item, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}
}

func TestItemCache_FillAndInvalidate(t *testing.T) {
	rdb := utils.SetupTestRedis(t)
	c := NewItemCache(rdb, time.Minute)
	ctx := context.Background()
	item := lamp()
	t.Cleanup(func() { rdb.Del(context.Background(), itemKey(item.ID), itemGenKey(item.ID)) })

	_, err := c.Fill(ctx, item.ID, func(context.Context) (*models.Item, error) { return item, nil })
	require.NoError(t, err)
	cached, ok := c.Get(ctx, item.ID)
	require.True(t, ok)
	assert.Equal(t, item.Title, cached.Title)

	c.Invalidate(ctx, item.ID)
	_, ok = c.Get(ctx, item.ID)
	assert.False(t, ok)
}

func TestItemCache_FillSkipsSnapshotInvalidatedDuringLoad(t *testing.T) {
	rdb := utils.SetupTestRedis(t)
	c := NewItemCache(rdb, time.Minute)
	ctx := context.Background()
	stale := lamp()
	t.Cleanup(func() { rdb.Del(context.Background(), itemKey(stale.ID), itemGenKey(stale.ID)) })

	// A writer commits and invalidates after the reader loaded its snapshot.
	got, err := c.Fill(ctx, stale.ID, func(ctx context.Context) (*models.Item, error) {
		snapshot := *stale
		c.Invalidate(ctx, stale.ID)
		return &snapshot, nil
	})
	require.NoError(t, err)
	assert.Equal(t, stale.Title, got.Title, "the reader still gets its own result")

	_, ok := c.Get(ctx, stale.ID)
	assert.False(t, ok, "stale snapshot must not be cached")
}
