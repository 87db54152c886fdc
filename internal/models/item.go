package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/utils"
)

// ItemStatus is the sale state of an item.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusBartered  ItemStatus = "bartered"
	ItemStatusSold      ItemStatus = "sold"
)

// ParseItemStatus validates a status received from a caller.
func ParseItemStatus(s string) (ItemStatus, bool) {
	switch st := ItemStatus(s); st {
	case ItemStatusAvailable, ItemStatusBartered, ItemStatusSold:
		return st, true
	}
	return "", false
}

// Item is a listing offered for sale (auction) or barter.
type Item struct {
	ID          utils.SixID     `json:"id"`
	Owner       string          `json:"owner"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Image       string          `json:"image,omitempty"` // object key, never the bytes
	Price       decimal.Decimal `json:"price"`
	CurrentBid  decimal.Decimal `json:"current_bid"`
	Status      ItemStatus      `json:"status"`
	IsBarter    bool            `json:"is_barter"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewItem holds the caller supplied fields of a listing.
type NewItem struct {
	Title       string
	Description string
	Category    string
	Price       decimal.Decimal
	IsBarter    bool
}

// OfferKind returns the kind of proposal this item accepts.
func (i *Item) OfferKind() OfferKind {
	if i.IsBarter {
		return OfferKindBarter
	}
	return OfferKindBid
}

// ClosedStatus is the terminal status the item moves to once an offer is accepted.
func (i *Item) ClosedStatus() ItemStatus {
	if i.IsBarter {
		return ItemStatusBartered
	}
	return ItemStatusSold
}

// IsAvailable reports whether the item still takes offers.
func (i *Item) IsAvailable() bool {
	return i.Status == ItemStatusAvailable
}
