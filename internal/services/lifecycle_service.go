package services

import (
	"context"
	"fmt"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

// ILifecycleService decides offers. Only the item owner may decide; the
// admin flag of the principal is ignored here.
type ILifecycleService interface {
	// AcceptOffer accepts a pending offer, rejects every sibling and closes
	// the item, all in one transaction.
	AcceptOffer(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error)
	// RejectOffer rejects a pending offer. Rejecting it again is a no-op.
	RejectOffer(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error)
}

type lifecycleService struct {
	st    store.Store
	cache ItemCache
}

// NewLifecycleService creates a new LifecycleService. cache may be nil.
func NewLifecycleService(st store.Store, cache ItemCache) ILifecycleService {
	return &lifecycleService{st: st, cache: cacheOrNoop(cache)}
}

// resolve loads the offer and locks its item, then checks ownership.
func resolve(ctx context.Context, tx store.Tx, offerID utils.SixID, requester models.Principal) (*models.Offer, *models.Item, error) {
	offer, err := tx.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, lookupErr(err, "offer", offerID)
	}
	item, err := tx.LockItem(ctx, offer.ItemID)
	if err != nil {
		return nil, nil, lookupErr(err, "item", offer.ItemID)
	}
	if !requester.Owns(item.Owner) {
		return nil, nil, fmt.Errorf("%w: item %s does not belong to %s", models.ErrUnauthorized, item.ID, requester.Email)
	}
	// re-read under the item lock
	offer, err = tx.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, lookupErr(err, "offer", offerID)
	}
	return offer, item, nil
}

func (s *lifecycleService) AcceptOffer(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error) {
	var d *models.Decision
	err := s.st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		offer, item, err := resolve(ctx, tx, offerID, requester)
		if err != nil {
			return err
		}
		if !item.IsAvailable() {
			return fmt.Errorf("%w: item %s is already %s", models.ErrInvalidState, item.ID, item.Status)
		}
		if offer.Status != models.OfferStatusPending {
			return fmt.Errorf("%w: offer %s is already %s", models.ErrInvalidState, offer.ID, offer.Status)
		}

		at := now()
		closed := item.ClosedStatus()
		moved, err := tx.TransitionItem(ctx, item.ID, models.ItemStatusAvailable, closed, at)
		if err != nil {
			return fmt.Errorf("failed to close item %s: %w", item.ID, err)
		}
		if !moved {
			return fmt.Errorf("%w: item %s is no longer available", models.ErrInvalidState, item.ID)
		}
		if err := tx.SetOfferStatus(ctx, offer.ID, models.OfferStatusAccepted, at); err != nil {
			return fmt.Errorf("failed to accept offer %s: %w", offer.ID, err)
		}
		superseded, err := tx.RejectSiblingOffers(ctx, item.ID, offer.ID, at)
		if err != nil {
			return fmt.Errorf("failed to reject sibling offers of item %s: %w", item.ID, err)
		}

		item.Status = closed
		item.UpdatedAt = at
		offer.Status = models.OfferStatusAccepted
		offer.UpdatedAt = at
		d = &models.Decision{Item: item, Offer: offer, Superseded: superseded, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, d.Item.ID)
	return d, nil
}

func (s *lifecycleService) RejectOffer(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error) {
	var d *models.Decision
	err := s.st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		offer, item, err := resolve(ctx, tx, offerID, requester)
		if err != nil {
			return err
		}
		switch offer.Status {
		case models.OfferStatusRejected:
			d = &models.Decision{Item: item, Offer: offer}
			return nil
		case models.OfferStatusAccepted:
			return fmt.Errorf("%w: offer %s is already accepted", models.ErrInvalidState, offer.ID)
		}

		at := now()
		if err := tx.SetOfferStatus(ctx, offer.ID, models.OfferStatusRejected, at); err != nil {
			return fmt.Errorf("failed to reject offer %s: %w", offer.ID, err)
		}
		offer.Status = models.OfferStatusRejected
		offer.UpdatedAt = at
		d = &models.Decision{Item: item, Offer: offer, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
