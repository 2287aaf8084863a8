package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld is returned when another instance owns the lock.
	ErrLockHeld = errors.New("lock held by another instance")

	// ErrLockLost is returned when the lock expired or was taken over.
	ErrLockLost = errors.New("lock lost")
)

// Both scripts only touch the key while it still holds our owner token.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lock is an owner-checked lock on one tracked handle.
type Lock struct {
	client *Client
	key    string
	owner  string
	ttl    time.Duration
	log    *slog.Logger
}

// AcquireLock takes the lock for handle. It returns ErrLockHeld if another
// instance already relays that handle.
func (c *Client) AcquireLock(ctx context.Context, handle string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	key := lockKey(handle)
	owner := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		holder, _ := c.rdb.Get(ctx, key).Result()
		return nil, fmt.Errorf("%w (key %s, owner %s)", ErrLockHeld, key, holder)
	}

	return &Lock{
		client: c,
		key:    key,
		owner:  owner,
		ttl:    ttl,
		log:    slog.Default().With("component", "redis-lock", "key", key),
	}, nil
}

// Refresh extends the lock TTL.
func (l *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release deletes the lock if we still own it.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Keep refreshes the lock every third of its TTL until ctx is done. onLost
// is called once if the lock is lost; refresh errors are only logged.
func (l *Lock) Keep(ctx context.Context, onLost func()) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Refresh(ctx)
			if errors.Is(err, ErrLockLost) {
				l.log.Error("Lost relay lock, another instance may take over")
				if onLost != nil {
					onLost()
				}
				return
			}
			if err != nil && ctx.Err() == nil {
				l.log.Warn("Failed to refresh relay lock", "error", err)
			}
		}
	}
}
