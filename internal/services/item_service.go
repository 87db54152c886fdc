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

// ItemFilter narrows ListItems. Nil or empty fields match everything.
type ItemFilter struct {
	Status   *models.ItemStatus
	IsBarter *bool
	Owner    string
	Category string
	Before   *store.Cursor // resume after this position
	Limit    int           // 0 means no limit
}

// IItemService defines the interface for item-related operations.
type IItemService interface {
	CreateItem(ctx context.Context, owner string, in models.NewItem) (*models.Item, error)
	FindItemByID(ctx context.Context, id utils.SixID) (*models.Item, error)
	// ListItems yields items newest first. The sequence is lazy and every
	// range over it queries the store again.
	ListItems(ctx context.Context, filter ItemFilter) iter.Seq2[*models.Item, error]
	// DeleteItem removes an item and its offers. Only the owner or an
	// admin may delete.
	DeleteItem(ctx context.Context, id utils.SixID, requester models.Principal) error
	SetItemImage(ctx context.Context, id utils.SixID, requester models.Principal, key string) (*models.Item, error)
}

// itemService implements IItemService.
type itemService struct {
	st    store.Store
	cache ItemCache
}

// NewItemService creates a new ItemService. cache may be nil.
func NewItemService(st store.Store, cache ItemCache) IItemService {
	return &itemService{st: st, cache: cacheOrNoop(cache)}
}

// CreateItem lists a new available item with current_bid equal to its price.
func (s *itemService) CreateItem(ctx context.Context, owner string, in models.NewItem) (*models.Item, error) {
	owner = models.NormalizeEmail(owner)
	title := strings.TrimSpace(in.Title)
	category := strings.TrimSpace(in.Category)
	description := strings.TrimSpace(in.Description)
	switch {
	case owner == "":
		return nil, fmt.Errorf("%w: owner is required", models.ErrValidation)
	case title == "":
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	case description == "":
		return nil, fmt.Errorf("%w: description is required", models.ErrValidation)
	}
	for _, f := range [][2]string{{"owner", owner}, {"title", title}, {"category", category}} {
		if err := checkSingleLine(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := validateAmount("price", in.Price); err != nil {
		return nil, err
	}

	at := now()
	item := &models.Item{
		Owner:       owner,
		Title:       title,
		Description: description,
		Category:    category,
		Price:       in.Price,
		CurrentBid:  in.Price,
		Status:      models.ItemStatusAvailable,
		IsBarter:    in.IsBarter,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	err := db.Try(func() error {
		item.ID = utils.NewSixID()
		return s.st.InsertItem(ctx, item)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert new item for %s (last attempted ID: %s): %w", owner, item.ID, err)
	}
	return item, nil
}

// FindItemByID returns the item, served from the cache when possible.
func (s *itemService) FindItemByID(ctx context.Context, id utils.SixID) (*models.Item, error) {
	if item, ok := s.cache.Get(ctx, id); ok {
		return item, nil
	}
	item, err := s.cache.Fill(ctx, id, func(ctx context.Context) (*models.Item, error) {
		return s.st.GetItem(ctx, id)
	})
	if err != nil {
		return nil, lookupErr(err, "item", id)
	}
	return item, nil
}

func (s *itemService) ListItems(ctx context.Context, filter ItemFilter) iter.Seq2[*models.Item, error] {
	return s.st.ListItems(ctx, store.ItemQuery{
		Status:   filter.Status,
		IsBarter: filter.IsBarter,
		Owner:    models.NormalizeEmail(filter.Owner),
		Category: filter.Category,
		Before:   filter.Before,
		Limit:    filter.Limit,
	})
}

func (s *itemService) DeleteItem(ctx context.Context, id utils.SixID, requester models.Principal) error {
	err := s.st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		item, err := tx.LockItem(ctx, id)
		if err != nil {
			return lookupErr(err, "item", id)
		}
		if !requester.Owns(item.Owner) && !requester.IsAdmin {
			return fmt.Errorf("%w: item %s does not belong to %s", models.ErrUnauthorized, id, requester.Email)
		}
		if err := tx.DeleteItem(ctx, id); err != nil {
			return fmt.Errorf("failed to delete item %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// SetItemImage records the object key of the item's picture. The bytes
// live in the media store.
func (s *itemService) SetItemImage(ctx context.Context, id utils.SixID, requester models.Principal, key string) (*models.Item, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: image key is required", models.ErrValidation)
	}

	var item *models.Item
	err := s.st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		item, err = tx.LockItem(ctx, id)
		if err != nil {
			return lookupErr(err, "item", id)
		}
		if !requester.Owns(item.Owner) {
			return fmt.Errorf("%w: item %s does not belong to %s", models.ErrUnauthorized, id, requester.Email)
		}
		at := now()
		if err := tx.SetItemImage(ctx, id, key, at); err != nil {
			return fmt.Errorf("failed to set image of item %s: %w", id, err)
		}
		item.Image = key
		item.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	return item, nil
}
