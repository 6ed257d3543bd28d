package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache keeps hot account balances in Redis for fast reads. It is strictly a
// read accelerator: the transactional recompute remains the source of truth
// and every journal write invalidates the key.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func balanceKey(accountID uuid.UUID) string {
	return "finance:balance:" + accountID.String()
}

// Balance returns the cached balance and whether it was present.
func (c *Cache) Balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, bool) {
	if c == nil || c.client == nil {
		return decimal.Zero, false
	}
	raw, err := c.client.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return parsed, true
}

// Store caches a balance for the configured TTL.
func (c *Cache) Store(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, balanceKey(accountID), balance.String(), c.ttl).Err()
}

// Invalidate drops the cached balance after a journal write commits.
func (c *Cache) Invalidate(ctx context.Context, accountID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, balanceKey(accountID)).Err()
}
