package lock

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// Locker provides Redis-backed distributed locks.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// Prefix is prepended to every key, e.g. "lock:product:".
	Prefix string
}

// WithLock executes fn while holding the lock for key.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	return l.WithLocks(ctx, []string{key}, ttl, fn)
}

// WithLocks acquires every key before running fn and releases them all when
// fn returns. Keys are deduplicated and taken in sorted order so that two
// callers with overlapping sets cannot deadlock. If ctx ends while waiting,
// the locks already held are released and ctx.Err() is returned.
func (l Locker) WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	ordered := normalize(keys, l.Prefix)
	token := uuid.NewString()
	held := make([]string, 0, len(ordered))
	defer func() {
		for _, k := range held {
			_ = releaseScript.Run(context.Background(), l.R, []string{k}, token).Err()
		}
	}()

	for _, k := range ordered {
		if err := l.acquire(ctx, k, token, ttl, retry); err != nil {
			return err
		}
		held = append(held, k)
	}
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl, retry time.Duration) error {
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func normalize(keys []string, prefix string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, prefix+k)
	}
	sort.Strings(out)
	return out
}
