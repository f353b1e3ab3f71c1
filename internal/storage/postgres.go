package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

// Postgres runs units as database transactions with SELECT ... FOR UPDATE
// row locks.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres builds a runner over db.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

type pgUnit struct {
	wallets   *wallet.TxStore
	ledger    *ledger.TxWriter
	inventory *marketplace.TxInventory
}

func (u *pgUnit) Wallets() wallet.Store            { return u.wallets }
func (u *pgUnit) Ledger() ledger.Writer            { return u.ledger }
func (u *pgUnit) Inventory() marketplace.Inventory { return u.inventory }

// Run implements Runner.
func (p *Postgres) Run(ctx context.Context, locks LockSet, fn func(ctx context.Context, u Unit) error) error {
	locks = locks.normalized()

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin unit: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	u := &pgUnit{
		wallets:   wallet.NewTxStore(tx),
		ledger:    ledger.NewTxWriter(tx),
		inventory: marketplace.NewTxInventory(tx),
	}

	for _, owner := range locks.Owners {
		if _, err := u.wallets.LockForUpdate(ctx, owner); err != nil {
			return err
		}
	}
	for _, id := range locks.Items {
		if _, err := u.inventory.Lock(ctx, id); err != nil {
			return err
		}
	}

	if err := fn(ctx, u); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}
