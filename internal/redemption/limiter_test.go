package redemption

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter mimics Redis INCR/EXPIRE semantics with a controllable clock:
// a key whose TTL has passed starts a fresh window on the next increment.
type fakeCounter struct {
	now         time.Time
	counts      map[string]int64
	deadlines   map[string]time.Time
	expireCalls int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{
		now:       time.Unix(1748779200, 0),
		counts:    make(map[string]int64),
		deadlines: make(map[string]time.Time),
	}
}

func (f *fakeCounter) Increment(ctx context.Context, key string) (int64, error) {
	if due, ok := f.deadlines[key]; ok && !f.now.Before(due) {
		delete(f.counts, key)
		delete(f.deadlines, key)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.deadlines[key] = f.now.Add(expiration)
	f.expireCalls++
	return nil
}

func (f *fakeCounter) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

type errCounter struct{}

func (errCounter) Increment(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (errCounter) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func TestAllow_DeniesAttemptPastLimit(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRedisRateLimiter(counter, 5, 300*time.Second)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ok, err := rl.Allow(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d within the window must pass", i)
	}

	ok, err := rl.Allow(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "sixth attempt within the window must be denied")

	assert.Equal(t, 1, counter.expireCalls, "TTL is set once per window")
}

func TestAllow_NewWindowAfterExpiry(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRedisRateLimiter(counter, 5, 300*time.Second)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		rl.Allow(ctx, 42)
	}

	counter.advance(300 * time.Second)

	ok, err := rl.Allow(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok, "a fresh window opens once the TTL elapses")
	assert.Equal(t, 2, counter.expireCalls, "the fresh window gets its own TTL")
}

func TestAllow_UsersDoNotShareWindows(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRedisRateLimiter(counter, 1, 300*time.Second)
	ctx := context.Background()

	ok, err := rl.Allow(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok, "another user's first attempt must pass")
}

func TestAllow_DisabledLimitAlwaysPasses(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRedisRateLimiter(counter, 0, 300*time.Second)

	ok, err := rl.Allow(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, counter.counts, "disabled limiter never touches the counter")
}

func TestAllow_CounterErrorDenies(t *testing.T) {
	rl := NewRedisRateLimiter(errCounter{}, 5, 300*time.Second)

	ok, err := rl.Allow(context.Background(), 42)
	require.Error(t, err)
	assert.False(t, ok)
}
