package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/utils"
)

const (
	itemKeyPrefix    = "item:"
	itemGenKeyPrefix = "itemgen:"
)

// generationTTL only has to outlive a store read in flight.
const generationTTL = time.Hour

// ItemCache keeps JSON snapshots of items in Redis. Every failure is logged
// and reported as a miss so that a Redis outage only costs a store read.
//
// Each item has a generation counter bumped by Invalidate. Fill watches it
// across the store read, so a snapshot read before a write never lands after
// that write's invalidation.
type ItemCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewItemCache returns a cache whose entries expire after ttl.
func NewItemCache(rdb *redis.Client, ttl time.Duration) *ItemCache {
	return &ItemCache{rdb: rdb, ttl: ttl}
}

func itemKey(id utils.SixID) string {
	return itemKeyPrefix + id.String()
}

func itemGenKey(id utils.SixID) string {
	return itemGenKeyPrefix + id.String()
}

// Get returns the cached item, or false on a miss.
func (c *ItemCache) Get(ctx context.Context, id utils.SixID) (*models.Item, bool) {
	data, err := c.rdb.Get(ctx, itemKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("Item cache: failed to read %s: %v", id, err)
		}
		return nil, false
	}
	var item models.Item
	if err := json.Unmarshal(data, &item); err != nil {
		log.Printf("Item cache: dropping undecodable entry %s: %v", id, err)
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &item, true
}

// Fill reads the item with load and caches the result, unless the item was
// invalidated while load ran. Errors from load are returned unchanged.
func (c *ItemCache) Fill(ctx context.Context, id utils.SixID, load func(context.Context) (*models.Item, error)) (*models.Item, error) {
	if c.ttl <= 0 {
		return load(ctx)
	}

	var (
		item    *models.Item
		loadErr error
		loaded  bool
	)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		item, loadErr = load(ctx)
		loaded = true
		if loadErr != nil {
			return nil
		}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, itemKey(id), data, c.ttl)
			return nil
		})
		return err
	}, itemGenKey(id))

	if !loaded {
		// WATCH never ran, typically because Redis is unreachable.
		item, loadErr = load(ctx)
	}
	if loadErr != nil {
		return nil, loadErr
	}
	switch {
	case errors.Is(err, redis.TxFailedErr):
		log.Printf("Item cache: %s changed during read, not caching", id)
	case err != nil:
		log.Printf("Item cache: failed to write %s: %v", id, err)
	}
	return item, nil
}

// Invalidate drops the entry for id and bumps its generation.
func (c *ItemCache) Invalidate(ctx context.Context, id utils.SixID) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, itemKey(id))
		pipe.Incr(ctx, itemGenKey(id))
		pipe.Expire(ctx, itemGenKey(id), generationTTL)
		return nil
	})
	if err != nil {
		log.Printf("Item cache: failed to invalidate %s: %v", id, err)
	}
}
