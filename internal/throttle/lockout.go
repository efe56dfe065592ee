package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// RedisLockout counts failed verifications per key. Once maxAttempts
// failures land within the lockout duration the key is locked until the
// counter expires. A success clears the counter.
type RedisLockout struct {
	client      *redis.Client
	maxAttempts int64
	duration    time.Duration
	prefix      string
}

// NewRedisLockout creates a lockout. maxAttempts <= 0 disables it.
func NewRedisLockout(client *redis.Client, maxAttempts int64, duration time.Duration) *RedisLockout {
	return &RedisLockout{client: client, maxAttempts: maxAttempts, duration: duration, prefix: "brgy:otp:fail:"}
}

// IsLocked reports whether key has used up its failed attempts.
func (l *RedisLockout) IsLocked(ctx context.Context, key string) (bool, error) {
	if l.maxAttempts <= 0 {
		return false, nil
	}

	count, err := l.client.Get(ctx, l.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read attempt counter: %w", err)
	}
	return count >= l.maxAttempts, nil
}

// RecordAttempt counts a failure or clears the counter on success.
func (l *RedisLockout) RecordAttempt(ctx context.Context, key string, success bool) error {
	if l.maxAttempts <= 0 {
		return nil
	}
	if success {
		if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
			return fmt.Errorf("failed to clear attempt counter: %w", err)
		}
		return nil
	}

	_, err := incrWindow(ctx, l.client, l.prefix+key, l.duration)
	return err
}

// LocalLockout is the single-process equivalent of RedisLockout.
type LocalLockout struct {
	mu          sync.Mutex
	maxAttempts int64
	duration    time.Duration
	now         func() time.Time
	records     map[string]*window
}

// NewLocalLockout creates a lockout. maxAttempts <= 0 disables it.
func NewLocalLockout(maxAttempts int64, duration time.Duration) *LocalLockout {
	return &LocalLockout{maxAttempts: maxAttempts, duration: duration, now: time.Now, records: make(map[string]*window)}
}

func (l *LocalLockout) IsLocked(ctx context.Context, key string) (bool, error) {
	if l.maxAttempts <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return false, nil
	}
	if l.now().Sub(rec.start) >= l.duration {
		delete(l.records, key)
		return false, nil
	}
	return rec.count >= l.maxAttempts, nil
}

func (l *LocalLockout) RecordAttempt(ctx context.Context, key string, success bool) error {
	if l.maxAttempts <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.records, key)
		return nil
	}

	now := l.now()
	rec, ok := l.records[key]
	if !ok || now.Sub(rec.start) >= l.duration {
		rec = &window{start: now}
		l.records[key] = rec
	}
	rec.count++
	return nil
}
