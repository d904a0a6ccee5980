package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilcraft/settlehouse/internal/domain"
)

const auctionTTL = 30 * time.Second

// AuctionCache is a short-lived read cache in front of the auction store.
// Auction rows mutate on every raise, so the TTL is deliberately short and
// every write path invalidates.
//
// Key schema:
//
//	auction:{id} - hash with field "data" containing JSON
type AuctionCache struct {
	rdb *redis.Client
}

// NewAuctionCache creates an AuctionCache backed by the given Client.
func NewAuctionCache(c *Client) *AuctionCache {
	return &AuctionCache{rdb: c.Underlying()}
}

func auctionKey(id uint64) string {
	return "auction:" + strconv.FormatUint(id, 10)
}

// Set stores an auction in the cache.
func (ac *AuctionCache) Set(ctx context.Context, a domain.Auction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("redis: marshal auction %d: %w", a.ID, err)
	}

	key := auctionKey(a.ID)

	pipe := ac.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, auctionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set auction %d: %w", a.ID, err)
	}
	return nil
}

// Get retrieves an auction by id. It returns domain.ErrNotFound on a miss.
func (ac *AuctionCache) Get(ctx context.Context, id uint64) (domain.Auction, error) {
	data, err := ac.rdb.HGet(ctx, auctionKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("redis: get auction %d: %w", id, err)
	}

	var a domain.Auction
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Auction{}, fmt.Errorf("redis: unmarshal auction %d: %w", id, err)
	}
	return a, nil
}

// Invalidate drops a cached auction.
func (ac *AuctionCache) Invalidate(ctx context.Context, id uint64) error {
	if err := ac.rdb.Del(ctx, auctionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction %d: %w", id, err)
	}
	return nil
}
