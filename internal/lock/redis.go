package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

var ErrLockNotHeld = errors.New("lock was not held or already expired")

// RedisOptions tunes the RedLock mutexes used by Redis.
type RedisOptions struct {
	// Prefix is prepended to account ids to form lock keys.
	Prefix string

	// Expiry bounds how long a crashed holder can keep an account locked.
	Expiry time.Duration

	// Tries and RetryDelay bound how long AcquirePair waits per account
	// when the context has no deadline of its own.
	Tries      int
	RetryDelay time.Duration

	// ReleaseTimeout caps the unlock round trip, which runs even when the
	// caller's context has been cancelled.
	ReleaseTimeout time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:         "ledger:lock:account:",
		Expiry:         10 * time.Second,
		Tries:          500,
		RetryDelay:     10 * time.Millisecond,
		ReleaseTimeout: 2 * time.Second,
	}
}

// Redis is a PairLocker shared by every service instance pointed at the
// same Redis deployment.
type Redis struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *slog.Logger
}

func NewRedis(client goredislib.UniversalClient, opts RedisOptions, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func (r *Redis) AcquirePair(ctx context.Context, a, b string) (func(), error) {
	ids := ordered(a, b)
	held := make([]*redsync.Mutex, 0, len(ids))

	for _, id := range ids {
		m := r.rs.NewMutex(
			r.opts.Prefix+id,
			redsync.WithExpiry(r.opts.Expiry),
			redsync.WithTries(r.opts.Tries),
			redsync.WithRetryDelay(r.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			r.unlockAll(ctx, held)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock for %s: %w", id, err)
		}
		held = append(held, m)
	}

	var once sync.Once
	return func() { once.Do(func() { r.unlockAll(ctx, held) }) }, nil
}

func (r *Redis) unlockAll(ctx context.Context, held []*redsync.Mutex) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ReleaseTimeout)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		ok, err := held[i].UnlockContext(ctx)
		if err != nil || !ok {
			if err == nil {
				err = ErrLockNotHeld
			}
			r.logger.WarnContext(ctx, "release account lock", slog.String("key", held[i].Name()), slog.Any("error", err))
		}
	}
}
