package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "wallet:"

// CachedReader fronts a Reader with a short-lived Redis copy of each wallet.
// Writers call Invalidate after commit; a stale read is bounded by the TTL.
type CachedReader struct {
	next   Reader
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedReader wraps next. A nil client disables caching.
func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedReader {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedReader{next: next, client: client, ttl: ttl, logger: logger}
}

// Get implements Reader.
func (r *CachedReader) Get(ctx context.Context, owner string) (Wallet, error) {
	if r.client == nil {
		return r.next.Get(ctx, owner)
	}

	key := cacheKey(owner)
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var w Wallet
		if jsonErr := json.Unmarshal(raw, &w); jsonErr == nil {
			return w, nil
		}
		r.logger.Warn("discarding undecodable cached wallet", slog.String("owner_id", owner))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("wallet cache lookup failed", slog.String("owner_id", owner), slog.Any("error", err))
		return r.next.Get(ctx, owner)
	}

	w, err := r.next.Get(ctx, owner)
	if err != nil {
		return Wallet{}, err
	}
	if payload, err := json.Marshal(w); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.logger.Warn("wallet cache fill failed", slog.String("owner_id", owner), slog.Any("error", err))
		}
	}
	return w, nil
}

// Invalidate drops cached copies for the given owners.
func (r *CachedReader) Invalidate(ctx context.Context, owners ...string) error {
	if r.client == nil || len(owners) == 0 {
		return nil
	}
	keys := make([]string, 0, len(owners))
	for _, owner := range owners {
		keys = append(keys, cacheKey(owner))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate wallet cache: %w", err)
	}
	return nil
}

func cacheKey(owner string) string {
	return cachePrefix + owner + ":balance"
}
