package services

import (
	"bytes"
	"context"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

// memStore is an in-memory store.Store. Transactions are serialized and
// rolled back by restoring a snapshot.
type memStore struct {
	mu sync.Mutex
	memData

	txCount int
}

type memData struct {
	items    map[utils.SixID]models.Item
	offers   map[utils.SixID]models.Offer
	contacts map[utils.SixID]models.Contact

	// insertOfferErrs are returned by the next InsertOffer calls, in order.
	insertOfferErrs []error
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{memData: memData{
		items:    map[utils.SixID]models.Item{},
		offers:   map[utils.SixID]models.Offer{},
		contacts: map[utils.SixID]models.Contact{},
	}}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	items, offers := maps.Clone(m.items), maps.Clone(m.offers)
	if err := fn(ctx, &m.memData); err != nil {
		m.items, m.offers = items, offers
		return err
	}
	return nil
}

func (m *memStore) Close(context.Context) error { return nil }

func (m *memStore) item(id utils.SixID) (models.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok
}

func (m *memStore) offer(id utils.SixID) (models.Offer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	return o, ok
}

func (m *memStore) countOffers(itemID utils.SixID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.offers {
		if o.ItemID == itemID {
			n++
		}
	}
	return n
}

// locked wraps the autocommit calls.
func (m *memStore) InsertItem(ctx context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memData.InsertItem(ctx, item)
}

func (m *memStore) GetItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memData.GetItem(ctx, id)
}

func (m *memStore) InsertContact(ctx context.Context, c *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memData.InsertContact(ctx, c)
}

func (m *memStore) GetContact(ctx context.Context, id utils.SixID) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memData.GetContact(ctx, id)
}

func (m *memStore) ListItems(ctx context.Context, q store.ItemQuery) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		m.mu.Lock()
		items := slices.Collect(m.memData.listItems(q))
		m.mu.Unlock()
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func (m *memStore) ListOffersByItem(ctx context.Context, itemID utils.SixID, order store.OfferOrder) iter.Seq2[*models.Offer, error] {
	return m.lockedOffers(func(d *memData) []*models.Offer { return d.offersByItem(itemID, order) })
}

func (m *memStore) ListOffersByBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error] {
	return m.lockedOffers(func(d *memData) []*models.Offer { return d.offersByBidder(bidder) })
}

func (m *memStore) lockedOffers(collect func(d *memData) []*models.Offer) iter.Seq2[*models.Offer, error] {
	return func(yield func(*models.Offer, error) bool) {
		m.mu.Lock()
		offers := collect(&m.memData)
		m.mu.Unlock()
		for _, o := range offers {
			if !yield(o, nil) {
				return
			}
		}
	}
}

func (d *memData) InsertItem(_ context.Context, item *models.Item) error {
	if _, ok := d.items[item.ID]; ok {
		return mongoDuplicateKey()
	}
	d.items[item.ID] = *item
	return nil
}

func (d *memData) GetItem(_ context.Context, id utils.SixID) (*models.Item, error) {
	it, ok := d.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &it, nil
}

func (d *memData) LockItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	return d.GetItem(ctx, id)
}

func itemBefore(it models.Item, c *store.Cursor) bool {
	if it.CreatedAt.Equal(c.CreatedAt) {
		return bytes.Compare(it.ID[:], c.ID[:]) < 0
	}
	return it.CreatedAt.Before(c.CreatedAt)
}

func (d *memData) listItems(q store.ItemQuery) iter.Seq[*models.Item] {
	var out []*models.Item
	for _, it := range d.items {
		switch {
		case q.Status != nil && it.Status != *q.Status,
			q.IsBarter != nil && it.IsBarter != *q.IsBarter,
			q.Owner != "" && it.Owner != q.Owner,
			q.Category != "" && it.Category != q.Category,
			q.Before != nil && !itemBefore(it, q.Before):
			continue
		}
		out = append(out, &it)
	}
	slices.SortFunc(out, func(a, b *models.Item) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return slices.Values(out)
}

func (d *memData) ListItems(_ context.Context, q store.ItemQuery) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		for it := range d.listItems(q) {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func (d *memData) DeleteItem(_ context.Context, id utils.SixID) error {
	if _, ok := d.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.items, id)
	for oid, o := range d.offers {
		if o.ItemID == id {
			delete(d.offers, oid)
		}
	}
	return nil
}

func (d *memData) SetItemImage(_ context.Context, id utils.SixID, key string, at time.Time) error {
	it, ok := d.items[id]
	if !ok {
		return store.ErrNotFound
	}
	it.Image, it.UpdatedAt = key, at
	d.items[id] = it
	return nil
}

func (d *memData) RaiseCurrentBid(_ context.Context, id utils.SixID, amount decimal.Decimal, at time.Time) (bool, error) {
	it, ok := d.items[id]
	if !ok || it.Status != models.ItemStatusAvailable || !it.CurrentBid.LessThan(amount) {
		return false, nil
	}
	it.CurrentBid, it.UpdatedAt = amount, at
	d.items[id] = it
	return true, nil
}

func (d *memData) TransitionItem(_ context.Context, id utils.SixID, from, to models.ItemStatus, at time.Time) (bool, error) {
	it, ok := d.items[id]
	if !ok || it.Status != from {
		return false, nil
	}
	it.Status, it.UpdatedAt = to, at
	d.items[id] = it
	return true, nil
}

func (d *memData) InsertOffer(_ context.Context, offer *models.Offer) error {
	if len(d.insertOfferErrs) > 0 {
		err := d.insertOfferErrs[0]
		d.insertOfferErrs = d.insertOfferErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := d.items[offer.ItemID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := d.offers[offer.ID]; ok {
		return mongoDuplicateKey()
	}
	d.offers[offer.ID] = *offer
	return nil
}

func (d *memData) GetOffer(_ context.Context, id utils.SixID) (*models.Offer, error) {
	o, ok := d.offers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (d *memData) offersByItem(itemID utils.SixID, order store.OfferOrder) []*models.Offer {
	var out []*models.Offer
	for _, o := range d.offers {
		if o.ItemID == itemID {
			out = append(out, &o)
		}
	}
	sortOffers(out, order)
	return out
}

func (d *memData) offersByBidder(bidder string) []*models.Offer {
	var out []*models.Offer
	for _, o := range d.offers {
		if o.Bidder == bidder {
			out = append(out, &o)
		}
	}
	sortOffers(out, store.OrderByCreatedDesc)
	return out
}

func sortOffers(out []*models.Offer, order store.OfferOrder) {
	byCreated := func(a, b *models.Offer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	}
	slices.SortFunc(out, func(a, b *models.Offer) int {
		switch order {
		case store.OrderByCreatedDesc:
			return byCreated(b, a)
		case store.OrderByAmountDesc:
			switch {
			case a.Amount == nil && b.Amount != nil:
				return 1
			case a.Amount != nil && b.Amount == nil:
				return -1
			case a.Amount != nil && b.Amount != nil:
				if c := b.Amount.Cmp(*a.Amount); c != 0 {
					return c
				}
			}
		}
		return byCreated(a, b)
	})
}

func (d *memData) ListOffersByItem(_ context.Context, itemID utils.SixID, order store.OfferOrder) iter.Seq2[*models.Offer, error] {
	return offerSeq(d.offersByItem(itemID, order))
}

func (d *memData) ListOffersByBidder(_ context.Context, bidder string) iter.Seq2[*models.Offer, error] {
	return offerSeq(d.offersByBidder(bidder))
}

func offerSeq(offers []*models.Offer) iter.Seq2[*models.Offer, error] {
	return func(yield func(*models.Offer, error) bool) {
		for _, o := range offers {
			if !yield(o, nil) {
				return
			}
		}
	}
}

func (d *memData) SetOfferStatus(_ context.Context, id utils.SixID, status models.OfferStatus, at time.Time) error {
	o, ok := d.offers[id]
	if !ok {
		return store.ErrNotFound
	}
	o.Status, o.UpdatedAt = status, at
	d.offers[id] = o
	return nil
}

func (d *memData) RejectSiblingOffers(_ context.Context, itemID, keep utils.SixID, at time.Time) ([]utils.SixID, error) {
	var ids []utils.SixID
	for id, o := range d.offers {
		if o.ItemID != itemID || id == keep || o.Status == models.OfferStatusRejected {
			continue
		}
		o.Status, o.UpdatedAt = models.OfferStatusRejected, at
		d.offers[id] = o
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *memData) InsertContact(_ context.Context, c *models.Contact) error {
	if _, ok := d.contacts[c.ID]; ok {
		return mongoDuplicateKey()
	}
	d.contacts[c.ID] = *c
	return nil
}

func (d *memData) GetContact(_ context.Context, id utils.SixID) (*models.Contact, error) {
	c, ok := d.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}
