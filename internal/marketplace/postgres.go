package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

const itemColumns = `id, seller_id, title, price, status, updated_at`

// TxInventory is the Postgres Inventory bound to one transaction.
type TxInventory struct {
	tx pgx.Tx
}

// NewTxInventory binds an inventory to tx.
func NewTxInventory(tx pgx.Tx) *TxInventory {
	return &TxInventory{tx: tx}
}

// Lock implements Inventory with a pessimistic row lock.
func (i *TxInventory) Lock(ctx context.Context, id string) (Item, error) {
	item, err := scanItem(i.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("lock item %s: %w", id, err)
	}
	return item, nil
}

// MarkSold implements Inventory.
func (i *TxInventory) MarkSold(ctx context.Context, id string) error {
	tag, err := i.tx.Exec(ctx, `UPDATE items SET status = $2, updated_at = NOW()
        WHERE id = $1 AND status = $3`, id, string(ItemSold), string(ItemAvailable))
	if err != nil {
		return fmt.Errorf("mark item %s sold: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotAvailable
	}
	return nil
}

// RecordSale implements Inventory.
func (i *TxInventory) RecordSale(ctx context.Context, sale Sale) (Sale, error) {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	_, err := i.tx.Exec(ctx, `INSERT INTO marketplace_transactions
        (id, item_id, buyer_id, seller_id, amount, platform_fee, status, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sale.ID, sale.ItemID, sale.BuyerID, sale.SellerID, sale.Amount.Minor(), sale.Fee.Minor(),
		sale.Status, sale.Reference, sale.CreatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}
	return sale, nil
}

// PostgresCatalog reads listings from the pool.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

// NewPostgresCatalog builds a catalog backed by PostgreSQL.
func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Item implements Catalog.
func (c *PostgresCatalog) Item(ctx context.Context, id string) (Item, error) {
	item, err := scanItem(c.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item   Item
		price  int64
		status string
	)
	if err := row.Scan(&item.ID, &item.SellerID, &item.Title, &price, &status, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	item.Price = money.FromMinor(price)
	item.Status = ItemStatus(status)
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}
