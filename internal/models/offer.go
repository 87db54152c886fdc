package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/utils"
)

// OfferKind distinguishes monetary bids from barter proposals.
type OfferKind string

const (
	OfferKindBid    OfferKind = "bid"
	OfferKindBarter OfferKind = "barter"
)

// OfferStatus is the decision state of an offer.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

// Offer is a bid (auction item) or a barter proposal (barter item).
// Exactly one of Amount and Message is meaningful, depending on Kind.
type Offer struct {
	ID        utils.SixID      `json:"id"`
	ItemID    utils.SixID      `json:"item_id"`
	Bidder    string           `json:"bidder"`
	Kind      OfferKind        `json:"kind"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Message   string           `json:"message,omitempty"`
	Status    OfferStatus      `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewOffer holds the caller supplied part of an offer.
type NewOffer struct {
	Amount  *decimal.Decimal
	Message string
}

// Decision is the outcome of accepting or rejecting an offer.
type Decision struct {
	Item       *Item         `json:"item"`
	Offer      *Offer        `json:"offer"`
	Superseded []utils.SixID `json:"superseded,omitempty"` // siblings rejected by an acceptance
	Changed    bool          `json:"changed"`              // false for an idempotent re-reject
}
