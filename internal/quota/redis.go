package quota

import (
	"context"
	"time"

	"github.com/openprep/openprep/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis counts with INCR on a per-day key that expires at the next UTC midnight,
// so every API instance shares the same allowance.
type Redis struct {
	rdb    *redis.Client
	limits Limits
	now    func() time.Time
}

func NewRedis(rdb *redis.Client, limits Limits) *Redis {
	return &Redis{rdb: rdb, limits: limits, now: time.Now}
}

func (q *Redis) Consume(ctx context.Context, owner models.Owner) (int, error) {
	limit := q.limits.For(owner)
	if limit <= 0 {
		return -1, nil
	}

	now := q.now()
	key := dayKey(owner.ID, now)

	pipe := q.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, nextMidnight(now))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	used := int(incr.Val())
	if used > limit {
		_ = q.rdb.Decr(ctx, key).Err()
		return 0, ErrLimitReached
	}
	return limit - used, nil
}

func (q *Redis) Release(ctx context.Context, owner models.Owner) error {
	if q.limits.For(owner) <= 0 {
		return nil
	}
	return q.rdb.Decr(ctx, dayKey(owner.ID, q.now())).Err()
}
