// Package pgstore implements store.Store on PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/store"
	"github.com/sharon232323/bidmate/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id          VARCHAR(10) PRIMARY KEY,
	owner       VARCHAR(255) NOT NULL,
	title       VARCHAR(200) NOT NULL,
	description TEXT NOT NULL,
	category    VARCHAR(100) NOT NULL DEFAULT '',
	image       VARCHAR(512) NOT NULL DEFAULT '',
	price       NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
	current_bid NUMERIC(12, 2) NOT NULL,
	status      VARCHAR(16) NOT NULL DEFAULT 'available',
	is_barter   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS offers (
	id         VARCHAR(10) PRIMARY KEY,
	item_id    VARCHAR(10) NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	bidder     VARCHAR(255) NOT NULL,
	kind       VARCHAR(16) NOT NULL,
	amount     NUMERIC(12, 2),
	message    TEXT NOT NULL DEFAULT '',
	status     VARCHAR(16) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id         VARCHAR(10) PRIMARY KEY,
	name       VARCHAR(100) NOT NULL,
	email      VARCHAR(255) NOT NULL DEFAULT '',
	year       VARCHAR(20) NOT NULL DEFAULT '',
	department VARCHAR(100) NOT NULL DEFAULT '',
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_listing ON items (created_at DESC, id COLLATE "C" DESC);
CREATE INDEX IF NOT EXISTS idx_items_owner ON items (owner);
CREATE INDEX IF NOT EXISTS idx_offers_item_id ON offers (item_id);
CREATE INDEX IF NOT EXISTS idx_offers_bidder ON offers (bidder);
`

const (
	itemColumns    = `id, owner, title, description, category, image, price, current_bid, status, is_barter, created_at, updated_at`
	offerColumns   = `id, item_id, bidder, kind, amount, message, status, created_at, updated_at`
	contactColumns = `id, name, email, year, department, reason, created_at`
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store is a PostgreSQL backed store.Store.
type Store struct {
	db *sql.DB
	tx
}

var _ store.Store = (*Store)(nil)

// New wraps an open database handle.
func New(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB, tx: tx{q: sqlDB}}
}

// InitSchema creates the tables and indexes if they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a READ COMMITTED transaction. Item rows read with
// LockItem stay locked until commit or rollback.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

type tx struct {
	q queryer
}

func scanItem(r rowScanner) (*models.Item, error) {
	var (
		item   models.Item
		status string
	)
	err := r.Scan(&item.ID, &item.Owner, &item.Title, &item.Description, &item.Category, &item.Image,
		&item.Price, &item.CurrentBid, &status, &item.IsBarter, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Status = models.ItemStatus(status)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func scanOffer(r rowScanner) (*models.Offer, error) {
	var (
		offer        models.Offer
		kind, status string
		amount       decimal.NullDecimal
	)
	err := r.Scan(&offer.ID, &offer.ItemID, &offer.Bidder, &kind, &amount, &offer.Message, &status,
		&offer.CreatedAt, &offer.UpdatedAt)
	if err != nil {
		return nil, err
	}
	offer.Kind = models.OfferKind(kind)
	offer.Status = models.OfferStatus(status)
	if amount.Valid {
		offer.Amount = &amount.Decimal
	}
	offer.CreatedAt = offer.CreatedAt.UTC()
	offer.UpdatedAt = offer.UpdatedAt.UTC()
	return &offer, nil
}

func (t *tx) InsertItem(ctx context.Context, item *models.Item) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.Owner, item.Title, item.Description, item.Category, item.Image,
		item.Price, item.CurrentBid, string(item.Status), item.IsBarter, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}
	return nil
}

func (t *tx) getItem(ctx context.Context, id utils.SixID, suffix string) (*models.Item, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`+suffix, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return item, nil
}

func (t *tx) GetItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	return t.getItem(ctx, id, "")
}

func (t *tx) LockItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	return t.getItem(ctx, id, " FOR UPDATE")
}

func buildItemQuery(q store.ItemQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Status != nil {
		where = append(where, "status = "+arg(string(*q.Status)))
	}
	if q.IsBarter != nil {
		where = append(where, "is_barter = "+arg(*q.IsBarter))
	}
	if q.Owner != "" {
		where = append(where, "owner = "+arg(q.Owner))
	}
	if q.Category != "" {
		where = append(where, "category = "+arg(q.Category))
	}
	if q.Before != nil {
		ts := arg(q.Before.CreatedAt)
		id := arg(q.Before.ID)
		where = append(where, fmt.Sprintf(`(created_at < %s OR (created_at = %s AND id COLLATE "C" < %s))`, ts, ts, id))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + itemColumns + ` FROM items`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(` ORDER BY created_at DESC, id COLLATE "C" DESC`)
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + arg(q.Limit))
	}
	return sb.String(), args
}

func (t *tx) ListItems(ctx context.Context, q store.ItemQuery) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		query, args := buildItemQuery(q)
		rows, err := t.q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan item: %w", err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate items: %w", err))
		}
	}
}

// DeleteItem relies on ON DELETE CASCADE to remove the item's offers.
func (t *tx) DeleteItem(ctx context.Context, id utils.SixID) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (t *tx) SetItemImage(ctx context.Context, id utils.SixID, key string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE items SET image = $2, updated_at = $3 WHERE id = $1`, id, key, at)
	if err != nil {
		return fmt.Errorf("failed to set image of item %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (t *tx) RaiseCurrentBid(ctx context.Context, id utils.SixID, amount decimal.Decimal, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `UPDATE items SET current_bid = $2, updated_at = $3
		WHERE id = $1 AND status = $4 AND current_bid < $2`,
		id, amount, at, string(models.ItemStatusAvailable))
	if err != nil {
		return false, fmt.Errorf("failed to raise current bid of item %s: %w", id, err)
	}
	return changed(res)
}

func (t *tx) TransitionItem(ctx context.Context, id utils.SixID, from, to models.ItemStatus, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `UPDATE items SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("failed to move item %s from %s to %s: %w", id, from, to, err)
	}
	return changed(res)
}

func (t *tx) InsertOffer(ctx context.Context, offer *models.Offer) error {
	var amount any
	if offer.Amount != nil {
		amount = *offer.Amount
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO offers (`+offerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		offer.ID, offer.ItemID, offer.Bidder, string(offer.Kind), amount, offer.Message, string(offer.Status),
		offer.CreatedAt, offer.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("item %s: %w", offer.ItemID, store.ErrNotFound)
		}
		return fmt.Errorf("failed to insert offer %s: %w", offer.ID, err)
	}
	return nil
}

func (t *tx) GetOffer(ctx context.Context, id utils.SixID) (*models.Offer, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	offer, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("offer %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get offer %s: %w", id, err)
	}
	return offer, nil
}

func (t *tx) listOffers(ctx context.Context, query string, args ...any) iter.Seq2[*models.Offer, error] {
	return func(yield func(*models.Offer, error) bool) {
		rows, err := t.q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query offers: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			offer, err := scanOffer(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan offer: %w", err))
				return
			}
			if !yield(offer, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate offers: %w", err))
		}
	}
}

func offerOrderClause(order store.OfferOrder) string {
	switch order {
	case store.OrderByAmountDesc:
		return `amount DESC NULLS LAST, created_at ASC, id COLLATE "C" ASC`
	case store.OrderByCreatedDesc:
		return `created_at DESC, id COLLATE "C" DESC`
	default:
		return `created_at ASC, id COLLATE "C" ASC`
	}
}

func (t *tx) ListOffersByItem(ctx context.Context, itemID utils.SixID, order store.OfferOrder) iter.Seq2[*models.Offer, error] {
	return t.listOffers(ctx, `SELECT `+offerColumns+` FROM offers WHERE item_id = $1 ORDER BY `+offerOrderClause(order), itemID)
}

func (t *tx) ListOffersByBidder(ctx context.Context, bidder string) iter.Seq2[*models.Offer, error] {
	return t.listOffers(ctx, `SELECT `+offerColumns+` FROM offers WHERE bidder = $1 ORDER BY `+offerOrderClause(store.OrderByCreatedDesc), bidder)
}

func (t *tx) SetOfferStatus(ctx context.Context, id utils.SixID, status models.OfferStatus, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE offers SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to set status of offer %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (t *tx) RejectSiblingOffers(ctx context.Context, itemID, keep utils.SixID, at time.Time) ([]utils.SixID, error) {
	rows, err := t.q.QueryContext(ctx, `UPDATE offers SET status = $3, updated_at = $4
		WHERE item_id = $1 AND id <> $2 AND status <> $3
		RETURNING id`,
		itemID, keep, string(models.OfferStatusRejected), at)
	if err != nil {
		return nil, fmt.Errorf("failed to reject offers of item %s: %w", itemID, err)
	}
	defer rows.Close()

	var ids []utils.SixID
	for rows.Next() {
		var id utils.SixID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan rejected offer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rejected offers: %w", err)
	}
	return ids, nil
}

func changed(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func requireRow(res sql.Result, id utils.SixID) error {
	ok, err := changed(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (t *tx) InsertContact(ctx context.Context, c *models.Contact) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO contacts (`+contactColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Email, c.Year, c.Department, c.Reason, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert contact %s: %w", c.ID, err)
	}
	return nil
}

func (t *tx) GetContact(ctx context.Context, id utils.SixID) (*models.Contact, error) {
	var c models.Contact
	err := t.q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Year, &c.Department, &c.Reason, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get contact %s: %w", id, err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
