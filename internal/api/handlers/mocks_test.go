package handlers_test

import (
	"context"
	"iter"

	"github.com/stretchr/testify/mock"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/notify"
	"github.com/sharon232323/bidmate/internal/services"
	"github.com/sharon232323/bidmate/internal/utils"
)

// --- Mocks ---

// seqOf yields the values and then, if non-nil, the error.
func seqOf[T any](values []*T, err error) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for _, v := range values {
			if !yield(v, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

// MockItemService
type MockItemService struct {
	mock.Mock
}

func (m *MockItemService) CreateItem(ctx context.Context, owner string, in models.NewItem) (*models.Item, error) {
	args := m.Called(ctx, owner, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemService) FindItemByID(ctx context.Context, id utils.SixID) (*models.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemService) ListItems(ctx context.Context, filter services.ItemFilter) iter.Seq2[*models.Item, error] {
	args := m.Called(ctx, filter)
	items, _ := args.Get(0).([]*models.Item)
	return seqOf(items, args.Error(1))
}

func (m *MockItemService) DeleteItem(ctx context.Context, id utils.SixID, requester models.Principal) error {
	args := m.Called(ctx, id, requester)
	return args.Error(0)
}

func (m *MockItemService) SetItemImage(ctx context.Context, id utils.SixID, requester models.Principal, key string) (*models.Item, error) {
	args := m.Called(ctx, id, requester, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

// MockOfferService
type MockOfferService struct {
	mock.Mock
}

func (m *MockOfferService) PlaceOffer(ctx context.Context, itemID utils.SixID, bidder string, in models.NewOffer) (*models.Offer, error) {
	args := m.Called(ctx, itemID, bidder, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *MockOfferService) ListOffersForItem(ctx context.Context, itemID utils.SixID) iter.Seq2[*models.Offer, error] {
	args := m.Called(ctx, itemID)
	offers, _ := args.Get(0).([]*models.Offer)
	return seqOf(offers, args.Error(1))
}

func (m *MockOfferService) ListOffersForBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error] {
	args := m.Called(ctx, bidder)
	offers, _ := args.Get(0).([]*models.Offer)
	return seqOf(offers, args.Error(1))
}

// MockLifecycleService
type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) AcceptOffer(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error) {
	args := m.Called(ctx, offerID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Decision), args.Error(1)
}

func (m *MockLifecycleService) RejectOffer(ctx context.Context, offerID utils.SixID, requester models.Principal) (*models.Decision, error) {
	args := m.Called(ctx, offerID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Decision), args.Error(1)
}

// MockS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) GeneratePresignedPutURL(ctx context.Context, owner, itemID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, owner, itemID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockS3Storage) PublicURL(key string) string {
	args := m.Called(key)
	return args.String(0)
}

// MockNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ev notify.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockContactService
type MockContactService struct {
	mock.Mock
}

func (m *MockContactService) CreateContact(ctx context.Context, in models.NewContact) (*models.Contact, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *MockContactService) FindContactByID(ctx context.Context, id utils.SixID) (*models.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contact), args.Error(1)
}

// MockContactNotifier
type MockContactNotifier struct {
	mock.Mock
}

func (m *MockContactNotifier) ContactReceived(ctx context.Context, c *models.Contact) error {
	return m.Called(ctx, c).Error(0)
}
