package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

const walletColumns = `owner_id, balance, created_at, updated_at`

// TxStore is the Postgres Store bound to a single pgx transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore binds a store to tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// LockForUpdate creates the wallet row if needed and takes its row lock for the
// rest of the transaction.
func (s *TxStore) LockForUpdate(ctx context.Context, owner string) (Wallet, error) {
	if _, err := s.tx.Exec(ctx, `INSERT INTO wallets (owner_id, balance) VALUES ($1, 0)
        ON CONFLICT (owner_id) DO NOTHING`, owner); err != nil {
		return Wallet{}, fmt.Errorf("ensure wallet %s: %w", owner, err)
	}
	row := s.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 FOR UPDATE`, owner)
	w, err := scanWallet(row)
	if err != nil {
		return Wallet{}, fmt.Errorf("lock wallet %s: %w", owner, err)
	}
	return w, nil
}

// GetOrCreate implements Store.
func (s *TxStore) GetOrCreate(ctx context.Context, owner string) (Wallet, error) {
	return s.LockForUpdate(ctx, owner)
}

// Debit implements Store. The balance guard lives in the UPDATE itself so a
// concurrent writer can never drive the row negative.
func (s *TxStore) Debit(ctx context.Context, owner string, amount money.Amount) (Wallet, error) {
	row := s.tx.QueryRow(ctx, `UPDATE wallets SET balance = balance - $2, updated_at = NOW()
        WHERE owner_id = $1 AND balance >= $2
        RETURNING `+walletColumns, owner, amount.Minor())
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrInsufficientFunds
	}
	if err != nil {
		return Wallet{}, fmt.Errorf("debit wallet %s: %w", owner, err)
	}
	return w, nil
}

// Credit implements Store.
func (s *TxStore) Credit(ctx context.Context, owner string, amount money.Amount) (Wallet, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO wallets (owner_id, balance) VALUES ($1, $2)
        ON CONFLICT (owner_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
        RETURNING `+walletColumns, owner, amount.Minor())
	w, err := scanWallet(row)
	if err != nil {
		return Wallet{}, fmt.Errorf("credit wallet %s: %w", owner, err)
	}
	return w, nil
}

// PostgresReader reads committed wallets from the pool.
type PostgresReader struct {
	db *pgxpool.Pool
}

// NewPostgresReader builds a reader backed by PostgreSQL.
func NewPostgresReader(db *pgxpool.Pool) *PostgresReader {
	return &PostgresReader{db: db}
}

// Get implements Reader.
func (r *PostgresReader) Get(ctx context.Context, owner string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, owner)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	if err != nil {
		return Wallet{}, fmt.Errorf("get wallet %s: %w", owner, err)
	}
	return w, nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w     Wallet
		minor int64
	)
	if err := row.Scan(&w.OwnerID, &minor, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.Balance = money.FromMinor(minor)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
