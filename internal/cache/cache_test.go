package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func counting(calls *int32, v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return v, nil
	}
}

func TestReuseWithinTTL(t *testing.T) {
	clk := newClock()
	c := New[string](0).WithClock(clk.Now)
	ctx := context.Background()
	var calls int32

	v, err := c.GetOrCompute(ctx, "k", 0, counting(&calls, "a"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	clk.Advance(599 * time.Second)
	v, err = c.GetOrCompute(ctx, "k", 0, counting(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clk.Advance(2 * time.Second)
	v, err = c.GetOrCompute(ctx, "k", 0, counting(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPerCallTTL(t *testing.T) {
	clk := newClock()
	c := New[string](time.Hour).WithClock(clk.Now)
	var calls int32
	_, _ = c.GetOrCompute(context.Background(), "k", time.Minute, counting(&calls, "a"))
	clk.Advance(2 * time.Minute)
	_, _ = c.GetOrCompute(context.Background(), "k", time.Minute, counting(&calls, "a"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConcurrentCallersShareOneComputation(t *testing.T) {
	c := New[string](0)
	release := make(chan struct{})
	var calls int32
	fn := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "rows", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "same", 0, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "rows", r)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	c := New[string](0)
	ctx := context.Background()
	var calls int32
	boom := errors.New("pq: connection refused")

	_, err := c.GetOrCompute(ctx, "k", 0, func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrCompute(ctx, "k", 0, counting(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCancelledCallerStopsWaitingButComputationCompletes(t *testing.T) {
	c := New[string](0)
	release := make(chan struct{})
	fnErr := make(chan error, 1)
	var calls int32
	fn := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		fnErr <- ctx.Err()
		return "late", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "k", 0, fn)
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("caller kept waiting after cancellation")
	}

	close(release)
	assert.NoError(t, <-fnErr)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)

	v, err := c.GetOrCompute(context.Background(), "k", 0, counting(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "late", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type fakeTier struct {
	mu     sync.Mutex
	vals   map[string]string
	at     map[string]time.Time
	getErr error
	sets   int
}

func newFakeTier() *fakeTier {
	return &fakeTier{vals: map[string]string{}, at: map[string]time.Time{}}
}

func (f *fakeTier) Get(_ context.Context, key string) (string, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", time.Time{}, false, f.getErr
	}
	v, ok := f.vals[key]
	return v, f.at[key], ok, nil
}

func (f *fakeTier) Set(_ context.Context, key string, v string, at time.Time, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[key] = v
	f.at[key] = at
	f.sets++
	return nil
}

func TestSecondTierIsSharedAcrossInstances(t *testing.T) {
	clk := newClock()
	tier := newFakeTier()
	var calls int32

	a := New[string](0).WithClock(clk.Now).WithTier(tier)
	_, err := a.GetOrCompute(context.Background(), "k", 0, counting(&calls, "from-db"))
	require.NoError(t, err)
	assert.Equal(t, 1, tier.sets)

	b := New[string](0).WithClock(clk.Now).WithTier(tier)
	v, err := b.GetOrCompute(context.Background(), "k", 0, counting(&calls, "again"))
	require.NoError(t, err)
	assert.Equal(t, "from-db", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// 二级缓存中的值按首次取数时间过期
	clk.Advance(601 * time.Second)
	d := New[string](0).WithClock(clk.Now).WithTier(tier)
	v, err = d.GetOrCompute(context.Background(), "k", 0, counting(&calls, "refreshed"))
	require.NoError(t, err)
	assert.Equal(t, "refreshed", v)
}

func TestSecondTierErrorsAreIgnored(t *testing.T) {
	tier := newFakeTier()
	tier.getErr = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	var calls int32
	c := New[string](0).WithTier(tier)
	v, err := c.GetOrCompute(context.Background(), "k", 0, counting(&calls, "db"))
	require.NoError(t, err)
	assert.Equal(t, "db", v)
}

func TestSweep(t *testing.T) {
	clk := newClock()
	c := New[string](time.Minute).WithClock(clk.Now)
	var calls int32
	_, _ = c.GetOrCompute(context.Background(), "old", 0, counting(&calls, "x"))
	clk.Advance(2 * time.Minute)
	_, _ = c.GetOrCompute(context.Background(), "new", 0, counting(&calls, "y"))
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	c.Invalidate("new")
	assert.Equal(t, 0, c.Len())
}

func TestRedisKey(t *testing.T) {
	k := RedisKey("q", `SELECT * FROM "RN_DIV" WHERE "x" > $1`)
	assert.True(t, strings.HasPrefix(k, "roaddb:q:"))
	assert.Len(t, k, len("roaddb:q:")+64)
	assert.NotContains(t, k, "SELECT")
	assert.Equal(t, k, RedisKey("q", `SELECT * FROM "RN_DIV" WHERE "x" > $1`))
}
