// Package storetest is a behavioural suite every store.Store must pass.
package storetest

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/db"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newItem(owner string, at time.Time, barter bool) *models.Item {
	return &models.Item{
		ID:          utils.NewSixID(),
		Owner:       owner,
		Title:       "Record player",
		Description: "Belt drive",
		Category:    "audio",
		Price:       dec("40.00"),
		CurrentBid:  dec("40.00"),
		Status:      models.ItemStatusAvailable,
		IsBarter:    barter,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func newBid(itemID utils.SixID, bidder, amount string, at time.Time) *models.Offer {
	a := dec(amount)
	return &models.Offer{
		ID:        utils.NewSixID(),
		ItemID:    itemID,
		Bidder:    bidder,
		Kind:      models.OfferKindBid,
		Amount:    &a,
		Status:    models.OfferStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func newProposal(itemID utils.SixID, bidder, message string, at time.Time) *models.Offer {
	return &models.Offer{
		ID:        utils.NewSixID(),
		ItemID:    itemID,
		Bidder:    bidder,
		Kind:      models.OfferKindBarter,
		Message:   message,
		Status:    models.OfferStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func collect[T any](t *testing.T, seq iter.Seq2[*T, error]) []*T {
	t.Helper()
	var out []*T
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func offerIDs(offers []*models.Offer) []utils.SixID {
	ids := make([]utils.SixID, len(offers))
	for i, o := range offers {
		ids[i] = o.ID
	}
	return ids
}

// Run exercises st. It must start empty.
func Run(t *testing.T, st store.Store) {
	t.Run("ItemRoundTrip", func(t *testing.T) { testItemRoundTrip(t, st) })
	t.Run("ListItems", func(t *testing.T) { testListItems(t, st) })
	t.Run("ConditionalUpdates", func(t *testing.T) { testConditionalUpdates(t, st) })
	t.Run("Offers", func(t *testing.T) { testOffers(t, st) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, st) })
	t.Run("DuplicateKey", func(t *testing.T) { testDuplicateKey(t, st) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, st) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, st) })
	t.Run("ConcurrentRaiseCurrentBid", func(t *testing.T) { testConcurrentRaiseCurrentBid(t, st) })
	t.Run("Contacts", func(t *testing.T) { testContacts(t, st) })
}

func testItemRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("roundtrip@x.com", base, false)
	item.Price = dec("12.34")
	item.CurrentBid = dec("12.34")
	require.NoError(t, st.InsertItem(ctx, item))

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.Owner, got.Owner)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, item.Category, got.Category)
	assert.True(t, item.Price.Equal(got.Price), "price %s", got.Price)
	assert.True(t, item.CurrentBid.Equal(got.CurrentBid))
	assert.Equal(t, models.ItemStatusAvailable, got.Status)
	assert.True(t, item.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, st.SetItemImage(ctx, item.ID, "uploads/k.jpg", base.Add(time.Minute)))
	got, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploads/k.jpg", got.Image)
	assert.True(t, base.Add(time.Minute).Equal(got.UpdatedAt))

	missing := utils.NewSixID()
	_, err = st.GetItem(ctx, missing)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	assert.True(t, errors.Is(st.SetItemImage(ctx, missing, "k", base), store.ErrNotFound))
}

func testListItems(t *testing.T, st store.Store) {
	ctx := context.Background()
	owner := "lister@x.com"
	var items []*models.Item
	for i := range 5 {
		item := newItem(owner, base.Add(time.Duration(i)*time.Hour), i%2 == 1)
		require.NoError(t, st.InsertItem(ctx, item))
		items = append(items, item)
	}
	// Same timestamp as the newest item; ties order by id
	twin := newItem(owner, items[4].CreatedAt, false)
	require.NoError(t, st.InsertItem(ctx, twin))

	all := collect(t, st.ListItems(ctx, store.ItemQuery{Owner: owner}))
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.False(t, cur.CreatedAt.After(prev.CreatedAt), "not newest first at %d", i)
	}

	// Paging with a cursor visits every item exactly once
	seen := map[utils.SixID]bool{}
	var before *store.Cursor
	for page := 0; page < 10; page++ {
		got := collect(t, st.ListItems(ctx, store.ItemQuery{Owner: owner, Limit: 2, Before: before}))
		if len(got) == 0 {
			break
		}
		for _, it := range got {
			assert.False(t, seen[it.ID], "item %s listed twice", it.ID)
			seen[it.ID] = true
		}
		last := got[len(got)-1]
		before = &store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	assert.Len(t, seen, 6)

	barter := true
	bartered := collect(t, st.ListItems(ctx, store.ItemQuery{Owner: owner, IsBarter: &barter}))
	assert.Len(t, bartered, 2)

	sold := models.ItemStatusSold
	ok, err := st.TransitionItem(ctx, items[0].ID, models.ItemStatusAvailable, sold, base)
	require.NoError(t, err)
	require.True(t, ok)
	gotSold := collect(t, st.ListItems(ctx, store.ItemQuery{Owner: owner, Status: &sold}))
	require.Len(t, gotSold, 1)
	assert.Equal(t, items[0].ID, gotSold[0].ID)

	none := collect(t, st.ListItems(ctx, store.ItemQuery{Owner: owner, Category: "garden"}))
	assert.Empty(t, none)
}

func testConditionalUpdates(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("cond@x.com", base, false)
	require.NoError(t, st.InsertItem(ctx, item))

	raised, err := st.RaiseCurrentBid(ctx, item.ID, dec("45.50"), base)
	require.NoError(t, err)
	assert.True(t, raised)

	raised, err = st.RaiseCurrentBid(ctx, item.ID, dec("45.50"), base)
	require.NoError(t, err)
	assert.False(t, raised, "equal amount must not raise")

	raised, err = st.RaiseCurrentBid(ctx, item.ID, dec("41"), base)
	require.NoError(t, err)
	assert.False(t, raised)

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, dec("45.50").Equal(got.CurrentBid), "current bid %s", got.CurrentBid)

	moved, err := st.TransitionItem(ctx, item.ID, models.ItemStatusAvailable, models.ItemStatusSold, base)
	require.NoError(t, err)
	assert.True(t, moved)
	moved, err = st.TransitionItem(ctx, item.ID, models.ItemStatusAvailable, models.ItemStatusSold, base)
	require.NoError(t, err)
	assert.False(t, moved)

	raised, err = st.RaiseCurrentBid(ctx, item.ID, dec("100"), base)
	require.NoError(t, err)
	assert.False(t, raised, "closed items keep their bid")
}

func testOffers(t *testing.T, st store.Store) {
	ctx := context.Background()
	auction := newItem("seller@x.com", base, false)
	barter := newItem("seller@x.com", base, true)
	require.NoError(t, st.InsertItem(ctx, auction))
	require.NoError(t, st.InsertItem(ctx, barter))

	low := newBid(auction.ID, "b@x.com", "41.00", base.Add(1*time.Minute))
	high := newBid(auction.ID, "c@x.com", "60.25", base.Add(2*time.Minute))
	mid := newBid(auction.ID, "b@x.com", "50.00", base.Add(3*time.Minute))
	for _, o := range []*models.Offer{low, high, mid} {
		require.NoError(t, st.InsertOffer(ctx, o))
	}
	first := newProposal(barter.ID, "b@x.com", "my bike", base.Add(5*time.Minute))
	second := newProposal(barter.ID, "d@x.com", "two lamps", base.Add(6*time.Minute))
	require.NoError(t, st.InsertOffer(ctx, second))
	require.NoError(t, st.InsertOffer(ctx, first))

	got, err := st.GetOffer(ctx, high.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Amount)
	assert.True(t, dec("60.25").Equal(*got.Amount))
	assert.Equal(t, models.OfferKindBid, got.Kind)

	p, err := st.GetOffer(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, p.Amount)
	assert.Equal(t, "my bike", p.Message)

	_, err = st.GetOffer(ctx, utils.NewSixID())
	assert.True(t, errors.Is(err, store.ErrNotFound))

	byAmount := collect(t, st.ListOffersByItem(ctx, auction.ID, store.OrderByAmountDesc))
	assert.Equal(t, []utils.SixID{high.ID, mid.ID, low.ID}, offerIDs(byAmount))

	byAge := collect(t, st.ListOffersByItem(ctx, barter.ID, store.OrderByCreatedAsc))
	assert.Equal(t, []utils.SixID{first.ID, second.ID}, offerIDs(byAge))

	mine := collect(t, st.ListOffersByBidder(ctx, "b@x.com"))
	assert.Equal(t, []utils.SixID{first.ID, mid.ID, low.ID}, offerIDs(mine))

	require.NoError(t, st.SetOfferStatus(ctx, low.ID, models.OfferStatusRejected, base.Add(time.Hour)))
	assert.True(t, errors.Is(st.SetOfferStatus(ctx, utils.NewSixID(), models.OfferStatusRejected, base), store.ErrNotFound))

	// low is already rejected, so only mid is reported
	rejected, err := st.RejectSiblingOffers(ctx, auction.ID, high.ID, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []utils.SixID{mid.ID}, rejected)

	for _, o := range collect(t, st.ListOffersByItem(ctx, auction.ID, store.OrderByAmountDesc)) {
		if o.ID == high.ID {
			assert.Equal(t, models.OfferStatusPending, o.Status)
		} else {
			assert.Equal(t, models.OfferStatusRejected, o.Status)
		}
	}

	rejected, err = st.RejectSiblingOffers(ctx, auction.ID, high.ID, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func testDeleteCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("deleter@x.com", base, false)
	require.NoError(t, st.InsertItem(ctx, item))
	bid := newBid(item.ID, "cascade@x.com", "44", base)
	require.NoError(t, st.InsertOffer(ctx, bid))

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteItem(ctx, item.ID)
	})
	require.NoError(t, err)

	_, err = st.GetItem(ctx, item.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = st.GetOffer(ctx, bid.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Empty(t, collect(t, st.ListOffersByBidder(ctx, "cascade@x.com")))

	assert.True(t, errors.Is(st.DeleteItem(ctx, item.ID), store.ErrNotFound))
}

func testDuplicateKey(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("dup@x.com", base, false)
	require.NoError(t, st.InsertItem(ctx, item))

	again := newItem("dup@x.com", base, false)
	again.ID = item.ID
	err := st.InsertItem(ctx, again)
	require.Error(t, err)
	assert.True(t, db.IsAnyDuplicateKeyError(err), "got %v", err)
}

func testTransactions(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("tx@x.com", base, false)
	boom := errors.New("boom")

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom), "got %v", err)
	_, err = st.GetItem(ctx, item.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound), "insert must roll back")

	require.NoError(t, st.InsertItem(ctx, item))
	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if _, err := tx.RaiseCurrentBid(ctx, locked.ID, dec("99"), base); err != nil {
			return err
		}
		_, err = tx.TransitionItem(ctx, locked.ID, models.ItemStatusAvailable, models.ItemStatusSold, base)
		return err
	})
	require.NoError(t, err)

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusSold, got.Status)
	assert.True(t, dec("99").Equal(got.CurrentBid))

	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockItem(ctx, utils.NewSixID())
		return err
	})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

const racers = 8

// race runs fn on racers goroutines released together and returns how many
// reported a change.
func race(t *testing.T, fn func() (bool, error)) int64 {
	t.Helper()
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		changed atomic.Int64
		errs    = make(chan error, racers)
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := fn()
			if err != nil {
				errs <- err
				return
			}
			if ok {
				changed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	return changed.Load()
}

func testConcurrentTransition(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("race@x.com", base, false)
	require.NoError(t, st.InsertItem(ctx, item))

	n := race(t, func() (bool, error) {
		var moved bool
		err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			moved = false
			locked, err := tx.LockItem(ctx, item.ID)
			if err != nil {
				return err
			}
			if locked.Status != models.ItemStatusAvailable {
				return nil
			}
			moved, err = tx.TransitionItem(ctx, item.ID, models.ItemStatusAvailable, models.ItemStatusSold, base)
			return err
		})
		return moved, err
	})
	assert.EqualValues(t, 1, n, "exactly one transaction may close the item")

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusSold, got.Status)
}

func testConcurrentRaiseCurrentBid(t *testing.T, st store.Store) {
	ctx := context.Background()
	item := newItem("race-bid@x.com", base, false)
	require.NoError(t, st.InsertItem(ctx, item))

	n := race(t, func() (bool, error) {
		return st.RaiseCurrentBid(ctx, item.ID, dec("50"), base)
	})
	assert.EqualValues(t, 1, n, "an amount raises the current bid once")

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(got.CurrentBid), "current bid %s", got.CurrentBid)
}

func testContacts(t *testing.T, st store.Store) {
	ctx := context.Background()
	c := &models.Contact{
		ID:         utils.NewSixID(),
		Name:       "Priya",
		Email:      "priya@campus.edu",
		Year:       "2nd",
		Department: "CSE",
		Reason:     "Please approve my account.\nThanks",
		CreatedAt:  base,
	}
	require.NoError(t, st.InsertContact(ctx, c))

	got, err := st.GetContact(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Email, got.Email)
	assert.Equal(t, c.Department, got.Department)
	assert.Equal(t, c.Reason, got.Reason)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

	_, err = st.GetContact(ctx, utils.NewSixID())
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = st.InsertContact(ctx, c)
	require.Error(t, err)
	assert.True(t, db.IsAnyDuplicateKeyError(err), "got %v", err)
}
