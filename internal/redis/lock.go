package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	claimTTL          = 7 * 24 * time.Hour
	claimKeyPrefix    = "payment_txn:"
	scanFailKeyPrefix = "scan_fail:"
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

// ClaimTransaction returns true for the first caller to claim transactionID
// within claimTTL and false for every later one.
func (r *Redis) ClaimTransaction(ctx context.Context, transactionID string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, claimKeyPrefix+transactionID, time.Now().UTC().Format(time.RFC3339), claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim transaction: %w", err)
	}
	return ok, nil
}

// ScanThrottle counts failed token scans per client within a fixed window.
type ScanThrottle struct {
	redis  *Redis
	limit  int64
	window time.Duration
}

func NewScanThrottle(r *Redis, limit int, window time.Duration) *ScanThrottle {
	return &ScanThrottle{redis: r, limit: int64(limit), window: window}
}

// Blocked reports whether client has used up its failure budget.
func (t *ScanThrottle) Blocked(ctx context.Context, client string) (bool, error) {
	n, err := t.redis.Client.Get(ctx, scanFailKeyPrefix+client).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= t.limit, nil
}

// RecordFailure counts one failed scan; the window starts at the first failure.
func (t *ScanThrottle) RecordFailure(ctx context.Context, client string) error {
	key := scanFailKeyPrefix + client
	pipe := t.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if incr.Val() == 1 {
		return t.redis.Client.Expire(ctx, key, t.window).Err()
	}
	return nil
}
