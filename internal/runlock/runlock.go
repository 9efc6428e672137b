// Package runlock keeps two pipeline runs from writing the warehouse at
// the same time, across hosts, with a Redis key holding the run id.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// Key is the Redis key of the lock.
const Key = "hotdog-etl:run-lock"

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("another run holds the lock")

// refresh extends the lock only while it still carries our value.
var refresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// release deletes the lock only while it still carries our value.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a held run lock.
type Lock struct {
	client *redis.Client
	runID  string
	ttl    time.Duration
}

// Acquire takes the lock for runID. It fails with ErrHeld, naming the
// holder, when another run has it.
func Acquire(ctx context.Context, client *redis.Client, runID string, ttl time.Duration) (*Lock, error) {
	ok, err := client.SetNX(ctx, Key, runID, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		holder, _ := client.Get(ctx, Key).Result()
		return nil, fmt.Errorf("%w: %s", ErrHeld, holder)
	}
	logging.Info().Str("key", Key).Dur("ttl", ttl).Msg("Run lock acquired")
	return &Lock{client: client, runID: runID, ttl: ttl}, nil
}

// Refresh extends the lock's TTL. It fails with ErrHeld when the lock
// expired and was taken by another run.
func (l *Lock) Refresh(ctx context.Context) error {
	n, err := refresh.Run(ctx, l.client, []string{Key}, l.runID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh run lock: %w", err)
	}
	if n == 0 {
		return ErrHeld
	}
	return nil
}

// Release drops the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	n, err := release.Run(ctx, l.client, []string{Key}, l.runID).Int64()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	if n == 0 {
		logging.Warn().Str("key", Key).Msg("Run lock was no longer held at release")
	}
	return nil
}

// NewClient returns a client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}
