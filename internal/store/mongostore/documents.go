package mongostore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/utils"
)

// itemDoc is the stored shape of models.Item.
type itemDoc struct {
	ID          utils.SixID          `bson:"_id"`
	Owner       string               `bson:"owner"`
	Title       string               `bson:"title"`
	Description string               `bson:"description"`
	Category    string               `bson:"category"`
	Image       string               `bson:"image"`
	Price       primitive.Decimal128 `bson:"price"`
	CurrentBid  primitive.Decimal128 `bson:"current_bid"`
	Status      string               `bson:"status"`
	IsBarter    bool                 `bson:"is_barter"`
	Rev         int64                `bson:"rev"` // bumped by LockItem
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

// offerDoc is the stored shape of models.Offer.
type offerDoc struct {
	ID        utils.SixID           `bson:"_id"`
	ItemID    utils.SixID           `bson:"item_id"`
	Bidder    string                `bson:"bidder"`
	Kind      string                `bson:"kind"`
	Amount    *primitive.Decimal128 `bson:"amount,omitempty"`
	Message   string                `bson:"message"`
	Status    string                `bson:"status"`
	CreatedAt time.Time             `bson:"created_at"`
	UpdatedAt time.Time             `bson:"updated_at"`
}

// contactDoc is the stored shape of models.Contact.
type contactDoc struct {
	ID         utils.SixID `bson:"_id"`
	Name       string      `bson:"name"`
	Email      string      `bson:"email,omitempty"`
	Year       string      `bson:"year,omitempty"`
	Department string      `bson:"department,omitempty"`
	Reason     string      `bson:"reason"`
	CreatedAt  time.Time   `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to decode decimal %s: %w", v, err)
	}
	return d, nil
}

func newItemDoc(item *models.Item) (*itemDoc, error) {
	price, err := toDecimal128(item.Price)
	if err != nil {
		return nil, err
	}
	currentBid, err := toDecimal128(item.CurrentBid)
	if err != nil {
		return nil, err
	}
	return &itemDoc{
		ID:          item.ID,
		Owner:       item.Owner,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Image:       item.Image,
		Price:       price,
		CurrentBid:  currentBid,
		Status:      string(item.Status),
		IsBarter:    item.IsBarter,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}

func (d *itemDoc) model() (*models.Item, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	currentBid, err := fromDecimal128(d.CurrentBid)
	if err != nil {
		return nil, err
	}
	return &models.Item{
		ID:          d.ID,
		Owner:       d.Owner,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Image:       d.Image,
		Price:       price,
		CurrentBid:  currentBid,
		Status:      models.ItemStatus(d.Status),
		IsBarter:    d.IsBarter,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func newOfferDoc(offer *models.Offer) (*offerDoc, error) {
	doc := &offerDoc{
		ID:        offer.ID,
		ItemID:    offer.ItemID,
		Bidder:    offer.Bidder,
		Kind:      string(offer.Kind),
		Message:   offer.Message,
		Status:    string(offer.Status),
		CreatedAt: offer.CreatedAt,
		UpdatedAt: offer.UpdatedAt,
	}
	if offer.Amount != nil {
		amount, err := toDecimal128(*offer.Amount)
		if err != nil {
			return nil, err
		}
		doc.Amount = &amount
	}
	return doc, nil
}

func (d *offerDoc) model() (*models.Offer, error) {
	offer := &models.Offer{
		ID:        d.ID,
		ItemID:    d.ItemID,
		Bidder:    d.Bidder,
		Kind:      models.OfferKind(d.Kind),
		Message:   d.Message,
		Status:    models.OfferStatus(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.Amount != nil {
		amount, err := fromDecimal128(*d.Amount)
		if err != nil {
			return nil, err
		}
		offer.Amount = &amount
	}
	return offer, nil
}

func newContactDoc(c *models.Contact) *contactDoc {
	return &contactDoc{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		Year:       c.Year,
		Department: c.Department,
		Reason:     c.Reason,
		CreatedAt:  c.CreatedAt,
	}
}

func (d *contactDoc) model() *models.Contact {
	return &models.Contact{
		ID:         d.ID,
		Name:       d.Name,
		Email:      d.Email,
		Year:       d.Year,
		Department: d.Department,
		Reason:     d.Reason,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}
