// Package throttle limits how often one-time codes may be issued for a key
// and locks out keys after repeated failed verifications.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window counter shared by every service replica.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisClient creates a client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisLimiter allows limit calls per key per window. A limit of zero
// disables the check.
func NewRedisLimiter(client *redis.Client, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "brgy:otp:issue:"}
}

// Allow counts one call against key and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	count, err := incrWindow(ctx, l.client, l.prefix+key, l.window)
	if err != nil {
		return false, err
	}
	return count <= l.limit, nil
}

// incrWindow increments k and reads its TTL in one MULTI. A counter without a
// TTL gets one, so a failed EXPIRE is repaired by the next hit instead of
// leaving the key counting forever.
func incrWindow(ctx context.Context, client *redis.Client, k string, window time.Duration) (int64, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	if ttl.Val() < 0 {
		if err := client.Expire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set counter window: %w", err)
		}
	}
	return incr.Val(), nil
}

// LocalLimiter is the single-process equivalent of RedisLimiter.
type LocalLimiter struct {
	mu      sync.Mutex
	limit   int64
	window  time.Duration
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	start time.Time
	count int64
}

// NewLocalLimiter allows limit calls per key per window.
func NewLocalLimiter(limit int64, win time.Duration) *LocalLimiter {
	return &LocalLimiter{limit: limit, window: win, now: time.Now, windows: make(map[string]*window)}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.limit, nil
}
