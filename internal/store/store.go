// Package store defines the persistence boundary of the marketplace. The
// concrete stores live in mongostore and pgstore.
package store

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/utils"
)

// ErrNotFound is returned by lookups that match no row/document.
var ErrNotFound = errors.New("store: not found")

// Cursor marks a position in the created_at desc, id desc item ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        utils.SixID
}

// ItemQuery filters ListItems. Zero values mean "any".
type ItemQuery struct {
	Status   *models.ItemStatus
	IsBarter *bool
	Owner    string
	Category string
	Before   *Cursor // only items strictly after this cursor in listing order
	Limit    int     // 0 means no limit
}

// OfferOrder selects the ordering of offer listings.
type OfferOrder int

const (
	OrderByCreatedAsc OfferOrder = iota
	OrderByCreatedDesc
	OrderByAmountDesc
)

// Tx is the set of row operations. A Store used directly runs each call on
// its own; inside RunInTx the calls share one transaction.
type Tx interface {
	InsertItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id utils.SixID) (*models.Item, error)
	// LockItem reads the item and holds a write lock on it until the
	// surrounding transaction ends.
	LockItem(ctx context.Context, id utils.SixID) (*models.Item, error)
	ListItems(ctx context.Context, q ItemQuery) iter.Seq2[*models.Item, error]
	// DeleteItem removes the item and all its offers.
	DeleteItem(ctx context.Context, id utils.SixID) error
	SetItemImage(ctx context.Context, id utils.SixID, key string, at time.Time) error
	// RaiseCurrentBid sets current_bid to amount only while the item is
	// available and current_bid < amount. It reports whether a row changed.
	RaiseCurrentBid(ctx context.Context, id utils.SixID, amount decimal.Decimal, at time.Time) (bool, error)
	// TransitionItem moves status from -> to and reports whether a row changed.
	TransitionItem(ctx context.Context, id utils.SixID, from, to models.ItemStatus, at time.Time) (bool, error)

	InsertOffer(ctx context.Context, offer *models.Offer) error
	GetOffer(ctx context.Context, id utils.SixID) (*models.Offer, error)
	ListOffersByItem(ctx context.Context, itemID utils.SixID, order OfferOrder) iter.Seq2[*models.Offer, error]
	ListOffersByBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error]
	SetOfferStatus(ctx context.Context, id utils.SixID, status models.OfferStatus, at time.Time) error
	// RejectSiblingOffers marks every offer of itemID except keep as
	// rejected and returns the ids that were not already rejected.
	RejectSiblingOffers(ctx context.Context, itemID, keep utils.SixID, at time.Time) ([]utils.SixID, error)

	InsertContact(ctx context.Context, contact *models.Contact) error
	GetContact(ctx context.Context, id utils.SixID) (*models.Contact, error)
}

// Store is a Tx that can also open transactions.
type Store interface {
	Tx
	// RunInTx runs fn in a transaction. fn's error aborts it and is
	// returned unchanged. fn may be invoked again on transient conflicts
	// and must therefore re-read whatever it depends on.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close(ctx context.Context) error
}
