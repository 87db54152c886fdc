// Package mongostore implements store.Store on MongoDB. Transactions need a
// replica set (a single-node one is enough).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/sharon232323/bidmate/internal/db"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

const (
	itemsCollection    = "items"
	offersCollection   = "offers"
	contactsCollection = "contacts"
)

// Store is a MongoDB backed store.Store.
type Store struct {
	client *mongo.Client
	tx
}

var _ store.Store = (*Store)(nil)

// New creates a store on the given database.
func New(client *mongo.Client, database *mongo.Database) *Store {
	return &Store{
		client: client,
		tx: tx{
			items:    database.Collection(itemsCollection),
			offers:   database.Collection(offersCollection),
			contacts: database.Collection(contactsCollection),
		},
	}
}

// EnsureIndexes creates the indexes backing the listing orders.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "is_barter", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create item indexes: %w", err)
	}
	_, err = s.offers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "amount", Value: -1}}},
		{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "bidder", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create offer indexes: %w", err)
	}
	return nil
}

// RunInTx runs fn in a snapshot transaction. The driver re-runs fn when the
// server reports a transient write conflict, which is how the loser of two
// concurrent LockItem calls gets to see the winner's result.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &s.tx)
	}, txOpts)
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return db.DisconnectMongo(ctx, s.client)
}

type tx struct {
	items    *mongo.Collection
	offers   *mongo.Collection
	contacts *mongo.Collection
}

func notFound(kind string, id utils.SixID) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func (t *tx) InsertItem(ctx context.Context, item *models.Item) error {
	doc, err := newItemDoc(item)
	if err != nil {
		return err
	}
	if _, err := t.items.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}
	return nil
}

func decodeItem(res *mongo.SingleResult, id utils.SixID) (*models.Item, error) {
	var doc itemDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("item", id)
		}
		return nil, fmt.Errorf("failed to find item %s: %w", id, err)
	}
	return doc.model()
}

func (t *tx) GetItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	return decodeItem(t.items.FindOne(ctx, bson.M{"_id": id}), id)
}

// LockItem writes to the item document so that a concurrent transaction
// touching the same item conflicts and is retried.
func (t *tx) LockItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return decodeItem(t.items.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"rev": 1}}, opts), id)
}

func itemFilter(q store.ItemQuery) bson.M {
	filter := bson.M{}
	if q.Status != nil {
		filter["status"] = string(*q.Status)
	}
	if q.IsBarter != nil {
		filter["is_barter"] = *q.IsBarter
	}
	if q.Owner != "" {
		filter["owner"] = q.Owner
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Before != nil {
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": q.Before.CreatedAt}},
			bson.M{"created_at": q.Before.CreatedAt, "_id": bson.M{"$lt": q.Before.ID}},
		}
	}
	return filter
}

func (t *tx) ListItems(ctx context.Context, q store.ItemQuery) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
		if q.Limit > 0 {
			opts.SetLimit(int64(q.Limit))
		}
		cur, err := t.items.Find(ctx, itemFilter(q), opts)
		if err != nil {
			yield(nil, fmt.Errorf("failed to execute item query: %w", err))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc itemDoc
			if err := cur.Decode(&doc); err != nil {
				yield(nil, fmt.Errorf("failed to decode item: %w", err))
				return
			}
			item, err := doc.model()
			if !yield(item, err) || err != nil {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, fmt.Errorf("item cursor failed: %w", err))
		}
	}
}

// DeleteItem removes the item and then its offers. Callers wanting both
// removals to be atomic run it inside RunInTx.
func (t *tx) DeleteItem(ctx context.Context, id utils.SixID) error {
	res, err := t.items.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return notFound("item", id)
	}
	if _, err := t.offers.DeleteMany(ctx, bson.M{"item_id": id}); err != nil {
		return fmt.Errorf("failed to delete offers of item %s: %w", id, err)
	}
	return nil
}

func (t *tx) SetItemImage(ctx context.Context, id utils.SixID, key string, at time.Time) error {
	res, err := t.items.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"image": key, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to set image of item %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return notFound("item", id)
	}
	return nil
}

func (t *tx) RaiseCurrentBid(ctx context.Context, id utils.SixID, amount decimal.Decimal, at time.Time) (bool, error) {
	v, err := toDecimal128(amount)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":         id,
		"status":      string(models.ItemStatusAvailable),
		"current_bid": bson.M{"$lt": v},
	}
	res, err := t.items.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"current_bid": v, "updated_at": at}})
	if err != nil {
		return false, fmt.Errorf("failed to raise current bid of item %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (t *tx) TransitionItem(ctx context.Context, id utils.SixID, from, to models.ItemStatus, at time.Time) (bool, error) {
	filter := bson.M{"_id": id, "status": string(from)}
	res, err := t.items.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": string(to), "updated_at": at}})
	if err != nil {
		return false, fmt.Errorf("failed to move item %s from %s to %s: %w", id, from, to, err)
	}
	return res.MatchedCount > 0, nil
}

func (t *tx) InsertOffer(ctx context.Context, offer *models.Offer) error {
	doc, err := newOfferDoc(offer)
	if err != nil {
		return err
	}
	if _, err := t.offers.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert offer %s: %w", offer.ID, err)
	}
	return nil
}

func (t *tx) GetOffer(ctx context.Context, id utils.SixID) (*models.Offer, error) {
	var doc offerDoc
	if err := t.offers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("offer", id)
		}
		return nil, fmt.Errorf("failed to find offer %s: %w", id, err)
	}
	return doc.model()
}

func offerSort(order store.OfferOrder) bson.D {
	switch order {
	case store.OrderByAmountDesc:
		// documents without an amount sort after every bid
		return bson.D{{Key: "amount", Value: -1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	case store.OrderByCreatedDesc:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	default:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	}
}

func (t *tx) listOffers(ctx context.Context, filter bson.M, order store.OfferOrder) iter.Seq2[*models.Offer, error] {
	return func(yield func(*models.Offer, error) bool) {
		cur, err := t.offers.Find(ctx, filter, options.Find().SetSort(offerSort(order)))
		if err != nil {
			yield(nil, fmt.Errorf("failed to execute offer query: %w", err))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc offerDoc
			if err := cur.Decode(&doc); err != nil {
				yield(nil, fmt.Errorf("failed to decode offer: %w", err))
				return
			}
			offer, err := doc.model()
			if !yield(offer, err) || err != nil {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, fmt.Errorf("offer cursor failed: %w", err))
		}
	}
}

func (t *tx) ListOffersByItem(ctx context.Context, itemID utils.SixID, order store.OfferOrder) iter.Seq2[*models.Offer, error] {
	return t.listOffers(ctx, bson.M{"item_id": itemID}, order)
}

func (t *tx) ListOffersByBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error] {
	return t.listOffers(ctx, bson.M{"bidder": bidder}, store.OrderByCreatedDesc)
}

func (t *tx) SetOfferStatus(ctx context.Context, id utils.SixID, status models.OfferStatus, at time.Time) error {
	res, err := t.offers.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status), "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to set status of offer %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return notFound("offer", id)
	}
	return nil
}

func (t *tx) RejectSiblingOffers(ctx context.Context, itemID, keep utils.SixID, at time.Time) ([]utils.SixID, error) {
	filter := bson.M{
		"item_id": itemID,
		"_id":     bson.M{"$ne": keep},
		"status":  bson.M{"$ne": string(models.OfferStatusRejected)},
	}

	cur, err := t.offers.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to find sibling offers of item %s: %w", itemID, err)
	}
	var found []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode sibling offers of item %s: %w", itemID, err)
	}
	if len(found) == 0 {
		return nil, nil
	}

	ids := make([]utils.SixID, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.ID)
	}
	update := bson.M{"$set": bson.M{"status": string(models.OfferStatusRejected), "updated_at": at}}
	if _, err := t.offers.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update); err != nil {
		return nil, fmt.Errorf("failed to reject sibling offers of item %s: %w", itemID, err)
	}
	return ids, nil
}

func (t *tx) InsertContact(ctx context.Context, contact *models.Contact) error {
	if _, err := t.contacts.InsertOne(ctx, newContactDoc(contact)); err != nil {
		return fmt.Errorf("failed to insert contact %s: %w", contact.ID, err)
	}
	return nil
}

func (t *tx) GetContact(ctx context.Context, id utils.SixID) (*models.Contact, error) {
	var doc contactDoc
	if err := t.contacts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("contact", id)
		}
		return nil, fmt.Errorf("failed to find contact %s: %w", id, err)
	}
	return doc.model(), nil
}
