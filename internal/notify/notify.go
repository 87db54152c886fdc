// Package notify carries marketplace events out of the request path once
// the store transaction has committed.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/utils"
)

// EventType names what happened to an offer.
type EventType string

const (
	EventOfferPlaced   EventType = "offer.placed"
	EventOfferAccepted EventType = "offer.accepted"
	EventOfferRejected EventType = "offer.rejected"
)

// Event describes a committed change to an offer.
type Event struct {
	EventID    string            `json:"event_id"`
	Type       EventType         `json:"type"`
	ItemID     utils.SixID       `json:"item_id"`
	ItemStatus models.ItemStatus `json:"item_status,omitempty"`
	OfferID    utils.SixID       `json:"offer_id"`
	Kind       models.OfferKind  `json:"kind"`
	Bidder     string            `json:"bidder"`
	Amount     *decimal.Decimal  `json:"amount,omitempty"`
	Superseded []utils.SixID     `json:"superseded,omitempty"`
	At         time.Time         `json:"at"`
}

// OfferPlaced builds the event for a newly placed offer.
func OfferPlaced(offer *models.Offer) Event {
	return Event{
		EventID: uuid.NewString(),
		Type:    EventOfferPlaced,
		ItemID:  offer.ItemID,
		OfferID: offer.ID,
		Kind:    offer.Kind,
		Bidder:  offer.Bidder,
		Amount:  offer.Amount,
		At:      offer.CreatedAt,
	}
}

// Decided builds the event for an accept or reject decision.
func Decided(d *models.Decision) Event {
	typ := EventOfferRejected
	if d.Offer.Status == models.OfferStatusAccepted {
		typ = EventOfferAccepted
	}
	return Event{
		EventID:    uuid.NewString(),
		Type:       typ,
		ItemID:     d.Item.ID,
		ItemStatus: d.Item.Status,
		OfferID:    d.Offer.ID,
		Kind:       d.Offer.Kind,
		Bidder:     d.Offer.Bidder,
		Amount:     d.Offer.Amount,
		Superseded: d.Superseded,
		At:         d.Offer.UpdatedAt,
	}
}

// Notifier delivers events. Implementations must not block for long; the
// caller is still serving a request.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Composite fans an event out to every notifier and joins their errors.
type Composite []Notifier

func (c Composite) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range c {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
