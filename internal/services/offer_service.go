package services

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/sharon232323/bidmate/internal/db"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

// IOfferService defines the interface for placing and listing offers.
type IOfferService interface {
	// PlaceOffer records a bid on an auction item or a barter proposal on a
	// barter item. A bid raises the item's current bid in the same
	// transaction.
	PlaceOffer(ctx context.Context, itemID utils.SixID, bidder string, in models.NewOffer) (*models.Offer, error)
	// ListOffersForItem yields bids by amount descending and barter
	// proposals oldest first.
	ListOffersForItem(ctx context.Context, itemID utils.SixID) iter.Seq2[*models.Offer, error]
	// ListOffersForBidder yields the bidder's offers on every item, newest first.
	ListOffersForBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error]
}

type offerService struct {
	st    store.Store
	cache ItemCache
}

// NewOfferService creates a new OfferService. cache may be nil.
func NewOfferService(st store.Store, cache ItemCache) IOfferService {
	return &offerService{st: st, cache: cacheOrNoop(cache)}
}

func (s *offerService) PlaceOffer(ctx context.Context, itemID utils.SixID, bidder string, in models.NewOffer) (*models.Offer, error) {
	bidder = models.NormalizeEmail(bidder)
	if bidder == "" {
		return nil, fmt.Errorf("%w: bidder is required", models.ErrValidation)
	}
	if err := checkSingleLine("bidder", bidder); err != nil {
		return nil, err
	}

	var offer *models.Offer
	// A duplicate id aborts the whole transaction, so the retry wraps it.
	err := db.Try(func() error {
		return s.st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			offer, err = s.placeOffer(ctx, tx, itemID, bidder, in)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if offer.Kind == models.OfferKindBid {
		s.cache.Invalidate(ctx, itemID)
	}
	return offer, nil
}

func (s *offerService) placeOffer(ctx context.Context, tx store.Tx, itemID utils.SixID, bidder string, in models.NewOffer) (*models.Offer, error) {
	item, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return nil, lookupErr(err, "item", itemID)
	}
	if !item.IsAvailable() {
		return nil, fmt.Errorf("%w: item %s is %s", models.ErrInvalidState, itemID, item.Status)
	}
	if models.NormalizeEmail(item.Owner) == bidder {
		return nil, fmt.Errorf("%w: %s cannot make an offer on their own item", models.ErrUnauthorized, bidder)
	}

	at := now()
	offer := &models.Offer{
		ID:        utils.NewSixID(),
		ItemID:    itemID,
		Bidder:    bidder,
		Kind:      item.OfferKind(),
		Status:    models.OfferStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}

	switch offer.Kind {
	case models.OfferKindBid:
		if in.Amount == nil {
			return nil, fmt.Errorf("%w: amount is required", models.ErrValidation)
		}
		amount := *in.Amount
		if err := validateAmount("amount", amount); err != nil {
			return nil, err
		}
		if amount.LessThanOrEqual(item.CurrentBid) {
			return nil, fmt.Errorf("%w: bid %s must exceed current bid %s", models.ErrValidation, amount.StringFixed(2), item.CurrentBid.StringFixed(2))
		}
		raised, err := tx.RaiseCurrentBid(ctx, itemID, amount, at)
		if err != nil {
			return nil, fmt.Errorf("failed to raise current bid of item %s: %w", itemID, err)
		}
		if !raised {
			// only reachable if the lock did not hold
			return nil, fmt.Errorf("%w: bid %s no longer exceeds the current bid of item %s", models.ErrValidation, amount.StringFixed(2), itemID)
		}
		offer.Amount = &amount
	case models.OfferKindBarter:
		message := strings.TrimSpace(in.Message)
		if message == "" {
			return nil, fmt.Errorf("%w: message is required", models.ErrValidation)
		}
		offer.Message = message
	}

	if err := tx.InsertOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to insert offer on item %s (ID: %s): %w", itemID, offer.ID, err)
	}
	return offer, nil
}

func (s *offerService) ListOffersForItem(ctx context.Context, itemID utils.SixID) iter.Seq2[*models.Offer, error] {
	return func(yield func(*models.Offer, error) bool) {
		item, err := s.st.GetItem(ctx, itemID)
		if err != nil {
			yield(nil, lookupErr(err, "item", itemID))
			return
		}
		order := store.OrderByCreatedAsc
		if !item.IsBarter {
			order = store.OrderByAmountDesc
		}
		for offer, err := range s.st.ListOffersByItem(ctx, itemID, order) {
			if !yield(offer, err) || err != nil {
				return
			}
		}
	}
}

func (s *offerService) ListOffersForBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error] {
	return s.st.ListOffersByBidder(ctx, models.NormalizeEmail(bidder))
}
