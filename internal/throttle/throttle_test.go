package throttle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a1:login")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a1:login")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "a2:login")
	assert.True(t, ok, "keys are counted separately")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "a1:login")
	assert.True(t, ok, "a new window starts after the old one elapses")
}

func TestLocalLimiterDisabled(t *testing.T) {
	l := NewLocalLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		ok, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	l := NewRedisLimiter(client, 1, time.Minute)
	key := uuid.New().String()

	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, l.prefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisLimiterRepairsMissingTTL(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	l := NewRedisLimiter(client, 3, time.Minute)
	key := uuid.New().String()

	// A counter left behind without a TTL, as after a failed EXPIRE.
	require.NoError(t, client.Set(ctx, l.prefix+key, 5, 0).Err())

	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, l.prefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "the counter expires again")
}

func TestLocalLockout(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalLockout(3, 15*time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		require.NoError(t, l.RecordAttempt(ctx, "a1:login", false))
	}
	locked, err := l.IsLocked(ctx, "a1:login")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, l.RecordAttempt(ctx, "a1:login", true))
	require.NoError(t, l.RecordAttempt(ctx, "a1:login", false))
	locked, _ = l.IsLocked(ctx, "a1:login")
	assert.False(t, locked, "a success clears earlier failures")

	require.NoError(t, l.RecordAttempt(ctx, "a1:login", false))
	require.NoError(t, l.RecordAttempt(ctx, "a1:login", false))
	locked, _ = l.IsLocked(ctx, "a1:login")
	assert.True(t, locked)

	locked, _ = l.IsLocked(ctx, "a1:password_reset")
	assert.False(t, locked, "keys are tracked separately")

	now = now.Add(15 * time.Minute)
	locked, _ = l.IsLocked(ctx, "a1:login")
	assert.False(t, locked, "the lock lifts after the duration")
}

func TestRedisLockout(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	l := NewRedisLockout(client, 2, time.Minute)
	key := uuid.New().String()

	require.NoError(t, l.RecordAttempt(ctx, key, false))
	require.NoError(t, l.RecordAttempt(ctx, key, false))
	locked, err := l.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, l.RecordAttempt(ctx, key, true))
	locked, err = l.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}
