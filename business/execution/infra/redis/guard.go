// Package redis provides a Redis-backed single-flight guard for multi-process deployments.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/flashloan-executor/business/execution/app"
	"github.com/fd1az/flashloan-executor/internal/apperror"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

const (
	keyPrefix = "executor:inflight:"

	// deadlineMargin keeps a claim alive past the plan deadline while the
	// holder finalises and releases it.
	deadlineMargin = 30 * time.Second
)

// releaseLua deletes the key only if it still holds the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Guard implements app.Guard with SET NX PX and a token-checked release.
// A claim expires after the larger of the configured TTL and the plan
// deadline plus a margin, so a live holder never loses it and a crashed
// holder's claim still expires.
type Guard struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	release *redis.Script
	logger  logger.LoggerInterface
}

var _ app.Guard = (*Guard)(nil)

// NewGuard creates a Guard over rdb.
func NewGuard(rdb redis.UniversalClient, ttl time.Duration, log logger.LoggerInterface) *Guard {
	return &Guard{
		rdb:     rdb,
		ttl:     ttl,
		release: redis.NewScript(releaseLua),
		logger:  log,
	}
}

// Acquire claims id across all processes sharing the Redis instance.
func (g *Guard) Acquire(ctx context.Context, id string, deadline time.Time) (func(), error) {
	key := keyPrefix + id
	token := uuid.NewString()
	ttl := g.claimTTL(deadline)

	ok, err := g.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, apperror.New(apperror.CodeGuardError,
			apperror.WithCause(err),
			apperror.WithContext("claim "+id))
	}
	if !ok {
		return nil, apperror.New(apperror.CodeDuplicateExecution,
			apperror.WithContext("opportunity "+id+" already in flight"))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may be cancelled by now.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := g.release.Run(rctx, g.rdb, []string{key}, token).Err(); err != nil {
				g.logger.Warn(rctx, "guard release failed, claim expires with ttl",
					"opportunity_id", id,
					"ttl", ttl,
					"error", err.Error())
			}
		})
	}, nil
}

func (g *Guard) claimTTL(deadline time.Time) time.Duration {
	ttl := g.ttl
	if d := time.Until(deadline) + deadlineMargin; d > ttl {
		ttl = d
	}
	if ttl <= 0 {
		ttl = deadlineMargin
	}
	return ttl
}

// Ping checks the Redis connection.
func (g *Guard) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}
