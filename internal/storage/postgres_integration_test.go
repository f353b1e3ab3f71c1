//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarpay/bazaarpay/internal/infra"
	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/money"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./internal/storage/

func newPostgres(t *testing.T) (*Postgres, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infra.NewPostgresPool(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool))
	return NewPostgres(pool), pool
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func fund(t *testing.T, p *Postgres, owner, amount string) {
	t.Helper()
	err := p.Run(context.Background(), LockSet{Owners: []string{owner}}, func(ctx context.Context, u Unit) error {
		_, err := u.Wallets().Credit(ctx, owner, money.MustParse(amount))
		return err
	})
	require.NoError(t, err)
}

func pgBalance(t *testing.T, pool *pgxpool.Pool, owner string) money.Amount {
	t.Helper()
	w, err := wallet.NewPostgresReader(pool).Get(context.Background(), owner)
	if errors.Is(err, wallet.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	return w.Balance
}

func TestPostgresRollbackDiscardsEverything(t *testing.T) {
	p, pool := newPostgres(t)
	ctx := context.Background()
	alice, bob := uniqueID("alice"), uniqueID("bob")
	ref := uniqueID("TRF")
	fund(t, p, alice, "100.00")

	errBoom := errors.New("boom")
	err := p.Run(ctx, LockSet{Owners: []string{alice, bob}}, func(ctx context.Context, u Unit) error {
		if _, err := u.Wallets().Debit(ctx, alice, money.MustParse("10.00")); err != nil {
			return err
		}
		if _, err := u.Wallets().Credit(ctx, bob, money.MustParse("10.00")); err != nil {
			return err
		}
		if _, err := u.Ledger().Append(ctx, ledger.Transaction{
			OwnerID: alice, Direction: ledger.Debit, Kind: ledger.KindTransfer,
			Amount: 1_000, Reference: ref, Status: ledger.StatusCompleted,
		}); err != nil {
			return err
		}
		if err := u.Ledger().ClaimKey(ctx, alice, "k1", ledger.Claim{Reference: ref, Kind: ledger.KindTransfer}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	reader := ledger.NewPostgresReader(pool)
	assert.Equal(t, money.MustParse("100.00"), pgBalance(t, pool, alice))
	assert.Equal(t, money.Amount(0), pgBalance(t, pool, bob))
	rows, err := reader.ByReference(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, err = reader.LookupKey(ctx, alice, "k1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestPostgresDebitGuardsBalance(t *testing.T) {
	p, pool := newPostgres(t)
	owner := uniqueID("carol")
	fund(t, p, owner, "5.00")

	err := p.Run(context.Background(), LockSet{Owners: []string{owner}}, func(ctx context.Context, u Unit) error {
		_, err := u.Wallets().Debit(ctx, owner, money.MustParse("5.01"))
		return err
	})
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	assert.Equal(t, money.MustParse("5.00"), pgBalance(t, pool, owner))
}

func TestPostgresClaimKeyDetectsDuplicates(t *testing.T) {
	p, pool := newPostgres(t)
	ctx := context.Background()
	owner := uniqueID("dave")
	claim := ledger.Claim{Reference: uniqueID("TOP"), Kind: ledger.KindTopUp, Fingerprint: "f1"}

	claimKey := func(c ledger.Claim) error {
		return p.Run(ctx, LockSet{Owners: []string{owner}}, func(ctx context.Context, u Unit) error {
			return u.Ledger().ClaimKey(ctx, owner, "k1", c)
		})
	}
	require.NoError(t, claimKey(claim))
	require.ErrorIs(t, claimKey(ledger.Claim{Reference: uniqueID("TRF"), Kind: ledger.KindTransfer}), ledger.ErrDuplicateRequest)

	got, err := ledger.NewPostgresReader(pool).LookupKey(ctx, owner, "k1")
	require.NoError(t, err)
	assert.Equal(t, claim, got)
}

func TestPostgresOpposingTransfersDoNotDeadlock(t *testing.T) {
	p, pool := newPostgres(t)
	a, b := uniqueID("erin"), uniqueID("frank")
	fund(t, p, a, "100.00")
	fund(t, p, b, "100.00")

	move := func(from, to string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return p.Run(ctx, LockSet{Owners: []string{from, to}}, func(ctx context.Context, u Unit) error {
			if _, err := u.Wallets().Debit(ctx, from, money.MustParse("1.00")); err != nil {
				return err
			}
			_, err := u.Wallets().Credit(ctx, to, money.MustParse("1.00"))
			return err
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); assert.NoError(t, move(a, b)) }()
		go func() { defer wg.Done(); assert.NoError(t, move(b, a)) }()
	}
	wg.Wait()

	assert.Equal(t, money.MustParse("200.00"), pgBalance(t, pool, a)+pgBalance(t, pool, b))
}

func TestPostgresItemSellsOnce(t *testing.T) {
	p, pool := newPostgres(t)
	ctx := context.Background()
	seller, item := uniqueID("seller"), uniqueID("item")
	_, err := pool.Exec(ctx, `INSERT INTO users (id, role) VALUES ($1, 'user')`, seller)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO items (id, seller_id, title, price) VALUES ($1, $2, 'Lamp', 1000)`, item, seller)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Run(ctx, LockSet{Items: []string{item}}, func(ctx context.Context, u Unit) error {
				current, err := u.Inventory().Lock(ctx, item)
				if err != nil {
					return err
				}
				if current.Status != marketplace.ItemAvailable {
					return marketplace.ErrItemNotAvailable
				}
				return u.Inventory().MarkSold(ctx, item)
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, marketplace.ErrItemNotAvailable)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := marketplace.NewPostgresCatalog(pool).Item(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, marketplace.ItemSold, got.Status)
}
