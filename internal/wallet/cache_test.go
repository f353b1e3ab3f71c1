package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarpay/bazaarpay/internal/logging"
	"github.com/bazaarpay/bazaarpay/internal/money"
)

type countingReader struct {
	wallets map[string]Wallet
	calls   int
}

func (r *countingReader) Get(_ context.Context, owner string) (Wallet, error) {
	r.calls++
	w, ok := r.wallets[owner]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func newCache(t *testing.T, next Reader) (*CachedReader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedReader(next, client, time.Minute, logging.Discard()), mr
}

func TestCachedReaderServesFromRedis(t *testing.T) {
	backing := &countingReader{wallets: map[string]Wallet{
		"alice": {OwnerID: "alice", Balance: money.MustParse("491.00")},
	}}
	cache, mr := newCache(t, backing)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w, err := cache.Get(ctx, "alice")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if w.Balance != money.MustParse("491.00") {
			t.Fatalf("unexpected balance %s", w.Balance)
		}
	}
	if backing.calls != 1 {
		t.Fatalf("expected a single backing read, got %d", backing.calls)
	}
	if !mr.Exists("wallet:alice:balance") {
		t.Fatal("expected cached entry")
	}
	if ttl := mr.TTL("wallet:alice:balance"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestCachedReaderInvalidate(t *testing.T) {
	backing := &countingReader{wallets: map[string]Wallet{
		"alice": {OwnerID: "alice", Balance: 100},
	}}
	cache, mr := newCache(t, backing)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "alice"); err != nil {
		t.Fatalf("get: %v", err)
	}
	backing.wallets["alice"] = Wallet{OwnerID: "alice", Balance: 50}
	if err := cache.Invalidate(ctx, "alice", "bob"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("wallet:alice:balance") {
		t.Fatal("entry survived invalidation")
	}

	w, err := cache.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if w.Balance != 50 {
		t.Fatalf("expected fresh balance, got %s", w.Balance)
	}
}

func TestCachedReaderPassesThroughMisses(t *testing.T) {
	cache, mr := newCache(t, &countingReader{wallets: map[string]Wallet{}})
	if _, err := cache.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("wallet:ghost:balance") {
		t.Fatal("misses must not be cached")
	}
}

func TestCachedReaderFallsBackWhenRedisDown(t *testing.T) {
	backing := &countingReader{wallets: map[string]Wallet{"alice": {OwnerID: "alice", Balance: 7}}}
	cache, mr := newCache(t, backing)
	mr.Close()

	w, err := cache.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("expected fallback read, got %v", err)
	}
	if w.Balance != 7 {
		t.Fatalf("unexpected balance %s", w.Balance)
	}
}
