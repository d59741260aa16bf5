package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Pawieee/microbank/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	ledgerKeyPrefix = "ledger:current:"
	maxSetAttempts  = 3
)

// OpenRedis connects and pings within five seconds.
func OpenRedis(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// LedgerCache keeps each loan's current ledger row as JSON under
// ledger:current:<loan_id>. Entries expire after ttl. SetCurrent never
// replaces a row with an older one, so a reader filling the cache from a
// read that raced a payment cannot undo the payment's write-through.
type LedgerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLedgerCache(rdb *redis.Client, ttl time.Duration) *LedgerCache {
	return &LedgerCache{rdb: rdb, ttl: ttl}
}

func LedgerKey(loanID string) string {
	return ledgerKeyPrefix + loanID
}

// GetCurrent reports a miss with (nil, false, nil). Undecodable entries are
// dropped and treated as a miss.
func (c *LedgerCache) GetCurrent(ctx context.Context, loanID string) (*domain.LoanDetail, bool, error) {
	raw, err := c.rdb.Get(ctx, LedgerKey(loanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var d domain.LoanDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		_ = c.rdb.Del(ctx, LedgerKey(loanID)).Err()
		return nil, false, nil
	}
	return &d, true, nil
}

// SetCurrent stores detail unless the cache already holds a newer row for
// the loan. The check and the write run in one WATCH transaction.
func (c *LedgerCache) SetCurrent(ctx context.Context, detail *domain.LoanDetail) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	key := LedgerKey(detail.LoanID)

	for attempt := 0; attempt < maxSetAttempts; attempt++ {
		err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				var cur domain.LoanDetail
				if json.Unmarshal(raw, &cur) == nil && !Supersedes(detail, &cur) {
					return nil
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, c.ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Supersedes reports whether next may replace cur. Each payment strictly
// lowers the balance, so a lower balance means a later row; the same row
// may be rewritten to refresh its expiry.
func Supersedes(next, cur *domain.LoanDetail) bool {
	if next.LoanDetailID == cur.LoanDetailID {
		return true
	}
	return next.Balance.LessThan(cur.Balance)
}

func (c *LedgerCache) Invalidate(ctx context.Context, loanID string) error {
	return c.rdb.Del(ctx, LedgerKey(loanID)).Err()
}
