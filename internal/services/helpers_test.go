package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/utils"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func amount(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func owner(email string) models.Principal {
	return models.Principal{Email: email, Approved: true}
}

func mongoDuplicateKey() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
}

// tickClock makes every call to now one second later than the previous one.
func tickClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var n atomic.Int64
	orig := now
	now = func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
	t.Cleanup(func() { now = orig })
}

// recordingCache is an ItemCache that remembers what happened to it. Like
// the Redis cache it keeps a generation per item and drops fills that raced
// an invalidation.
type recordingCache struct {
	mu          sync.Mutex
	entries     map[utils.SixID]models.Item
	generation  map[utils.SixID]int
	gets, hits  int
	invalidated []utils.SixID
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[utils.SixID]models.Item{}, generation: map[utils.SixID]int{}}
}

func (c *recordingCache) Get(_ context.Context, id utils.SixID) (*models.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	it, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.hits++
	return &it, true
}

func (c *recordingCache) Fill(ctx context.Context, id utils.SixID, load func(context.Context) (*models.Item, error)) (*models.Item, error) {
	c.mu.Lock()
	gen := c.generation[id]
	c.mu.Unlock()

	item, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[id] == gen {
		c.entries[id] = *item
	}
	return item, nil
}

func (c *recordingCache) Invalidate(_ context.Context, id utils.SixID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.generation[id]++
	c.invalidated = append(c.invalidated, id)
}

type fixture struct {
	st        *memStore
	cache     *recordingCache
	items     IItemService
	offers    IOfferService
	lifecycle ILifecycleService
}

func newFixture() *fixture {
	st := newMemStore()
	c := newRecordingCache()
	return &fixture{
		st:        st,
		cache:     c,
		items:     NewItemService(st, c),
		offers:    NewOfferService(st, c),
		lifecycle: NewLifecycleService(st, c),
	}
}

func (f *fixture) auction(t *testing.T, ownerEmail, price string) *models.Item {
	t.Helper()
	item, err := f.items.CreateItem(context.Background(), ownerEmail, models.NewItem{
		Title: "Desk lamp", Description: "Barely used", Price: dec(price),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) barter(t *testing.T, ownerEmail string) *models.Item {
	t.Helper()
	item, err := f.items.CreateItem(context.Background(), ownerEmail, models.NewItem{
		Title: "Calculus textbook", Description: "3rd edition", Price: dec("0"), IsBarter: true,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) bid(t *testing.T, item *models.Item, bidder, amt string) *models.Offer {
	t.Helper()
	offer, err := f.offers.PlaceOffer(context.Background(), item.ID, bidder, models.NewOffer{Amount: amount(amt)})
	require.NoError(t, err)
	return offer
}

func (f *fixture) propose(t *testing.T, item *models.Item, bidder, message string) *models.Offer {
	t.Helper()
	offer, err := f.offers.PlaceOffer(context.Background(), item.ID, bidder, models.NewOffer{Message: message})
	require.NoError(t, err)
	return offer
}
