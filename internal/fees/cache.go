package fees

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cacheKeyPrefix = "dukaan:fees:category:"

// Cached decorates a Lookup with a Redis read-through cache. Only
// successful lookups are cached; errors always fall through to the next
// lookup so a transient failure does not pin a zero fee.
type Cached struct {
	Next   Lookup
	Client *redis.Client
	TTL    time.Duration
}

// CategoryHandlingFee returns the cached fee when present, otherwise
// delegates and stores the result.
func (c Cached) CategoryHandlingFee(ctx context.Context, categoryID string) (decimal.Decimal, error) {
	if c.Client == nil || c.TTL <= 0 {
		return c.Next.CategoryHandlingFee(ctx, categoryID)
	}
	key := cacheKeyPrefix + categoryID
	if raw, err := c.Client.Get(ctx, key).Result(); err == nil {
		if fee, parseErr := decimal.NewFromString(raw); parseErr == nil {
			return fee, nil
		}
	}
	fee, err := c.Next.CategoryHandlingFee(ctx, categoryID)
	if err != nil {
		return decimal.Zero, err
	}
	_ = c.Client.Set(ctx, key, fee.String(), c.TTL).Err()
	return fee, nil
}
