package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

const priceTTL = 10 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes.
//
// Key schema:
//
//	price:{chain}:{tokenAddress} - hash with fields "price" and "ts" (unix millis)
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(chain, tokenAddress string) string {
	return "price:" + chain + ":" + tokenAddress
}

// SetPrice stores the last-known price for a token with a 10-minute TTL.
func (c *PriceCache) SetPrice(ctx context.Context, chain, tokenAddress string, price float64, ts time.Time) error {
	key := priceKey(chain, tokenAddress)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"price", strconv.FormatFloat(price, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixMilli(), 10),
	)
	pipe.Expire(ctx, key, priceTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", tokenAddress, err)
	}
	return nil
}

// GetPrice retrieves the cached price and its observation time.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (c *PriceCache) GetPrice(ctx context.Context, chain, tokenAddress string) (float64, time.Time, error) {
	fields, err := c.rdb.HMGet(ctx, priceKey(chain, tokenAddress), "price", "ts").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", tokenAddress, err)
	}
	if len(fields) != 2 || fields[0] == nil || fields[1] == nil {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := fields[0].(string)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: unexpected field type", tokenAddress)
	}
	tsStr, ok := fields[1].(string)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: price ts %s: unexpected field type", tokenAddress)
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", tokenAddress, err)
	}
	millis, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price ts %s: %w", tokenAddress, err)
	}

	return price, time.UnixMilli(millis).UTC(), nil
}
