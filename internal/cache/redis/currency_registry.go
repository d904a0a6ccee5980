package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// currenciesKey is the hash holding the currency allow-list. Fields are
// checksummed addresses, values "1" (allowed) or "0" (blocked).
const currenciesKey = "currencies:allowed"

// CurrencyRegistry implements domain.CurrencyRegistry on a Redis hash. The
// allow-list is tiny and admin-managed, so a single shared hash with no TTL
// is enough; absence means not allowed.
type CurrencyRegistry struct {
	rdb *redis.Client
}

// NewCurrencyRegistry creates a CurrencyRegistry backed by the given Client.
func NewCurrencyRegistry(c *Client) *CurrencyRegistry {
	return &CurrencyRegistry{rdb: c.Underlying()}
}

// CurrencyAllowed reports whether the currency is on the allow-list.
func (r *CurrencyRegistry) CurrencyAllowed(ctx context.Context, currency common.Address) (bool, error) {
	val, err := r.rdb.HGet(ctx, currenciesKey, currency.Hex()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: currency allowed %s: %w", currency.Hex(), err)
	}
	return val == "1", nil
}

// SetCurrencyAllowed flips a currency's allow-list entry.
func (r *CurrencyRegistry) SetCurrencyAllowed(ctx context.Context, currency common.Address, allowed bool) error {
	val := "0"
	if allowed {
		val = "1"
	}
	if err := r.rdb.HSet(ctx, currenciesKey, currency.Hex(), val).Err(); err != nil {
		return fmt.Errorf("redis: set currency %s: %w", currency.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CurrencyRegistry = (*CurrencyRegistry)(nil)
