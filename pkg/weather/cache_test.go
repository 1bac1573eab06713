package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/types"
)

type fakeProvider struct {
	calls atomic.Int32
	obs   Observation
	err   error
	// block, when set, is waited on before returning
	block chan struct{}
}

func (f *fakeProvider) Current(ctx context.Context, lat, lon float64) (Observation, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Observation{}, ctx.Err()
		}
	}
	return f.obs, f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ctxStore fails writes made with a finished context, like a remote store.
type ctxStore struct {
	*MemoryStore
}

func (s ctxStore) PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.PutWeatherSnapshot(ctx, snap)
}

func newTestCache(p Provider) (*Cache, *MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	return NewCache(p, store).WithClock(clock.Now), store, clock
}

func testObservation() Observation {
	return Observation{
		CloudCoverPct: 40,
		Sunrise:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Sunset:        time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
	}
}

func TestLocationKey(t *testing.T) {
	assert.Equal(t, "24.86,67.00", LocationKey(24.8607, 67.0011))
	assert.Equal(t, LocationKey(24.8607, 67.0011), LocationKey(24.8641, 67.0049))
	assert.NotEqual(t, LocationKey(24.86, 67.00), LocationKey(24.87, 67.00))
}

func TestCacheGet(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh snapshot is served without calling the provider", func(t *testing.T) {
		p := &fakeProvider{obs: testObservation()}
		c, _, clock := newTestCache(p)

		w, err := c.Get(ctx, 24.86, 67.00)
		require.NoError(t, err)
		assert.Equal(t, 40.0, w.CloudCoverPct)
		assert.False(t, w.Stale)
		assert.Equal(t, int32(1), p.calls.Load())

		clock.Advance(29 * time.Minute)
		w, err = c.Get(ctx, 24.8641, 67.0049)
		require.NoError(t, err)
		assert.False(t, w.Stale)
		assert.Equal(t, int32(1), p.calls.Load(), "nearby coordinate should share the entry")
	})

	t.Run("expired snapshot is refreshed", func(t *testing.T) {
		p := &fakeProvider{obs: testObservation()}
		c, store, clock := newTestCache(p)

		_, err := c.Get(ctx, 24.86, 67.00)
		require.NoError(t, err)

		clock.Advance(31 * time.Minute)
		p.obs.CloudCoverPct = 90
		w, err := c.Get(ctx, 24.86, 67.00)
		require.NoError(t, err)
		assert.Equal(t, 90.0, w.CloudCoverPct)
		assert.Equal(t, clock.Now(), w.FetchedAt)
		assert.Equal(t, int32(2), p.calls.Load())

		snap, ok, err := store.GetWeatherSnapshot(ctx, "24.86,67.00")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 90.0, snap.CloudCoverPct)
	})

	t.Run("provider failure falls back to stale snapshot", func(t *testing.T) {
		p := &fakeProvider{obs: testObservation()}
		c, _, clock := newTestCache(p)

		_, err := c.Get(ctx, 24.86, 67.00)
		require.NoError(t, err)

		clock.Advance(2 * time.Hour)
		p.err = errors.New("upstream 503")
		w, err := c.Get(ctx, 24.86, 67.00)
		require.NoError(t, err)
		assert.True(t, w.Stale)
		assert.Equal(t, 40.0, w.CloudCoverPct)
	})

	t.Run("provider failure with no snapshot", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("upstream 503")}
		c, _, _ := newTestCache(p)

		_, err := c.Get(ctx, 24.86, 67.00)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("slow provider is cut off by the fetch timeout", func(t *testing.T) {
		p := &fakeProvider{obs: testObservation(), block: make(chan struct{})}
		defer close(p.block)
		c, _, _ := newTestCache(p)
		c.WithFetchTimeout(20 * time.Millisecond)

		_, err := c.Get(ctx, 24.86, 67.00)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("refresh is stored after the caller goes away", func(t *testing.T) {
		p := &fakeProvider{obs: testObservation()}
		store := ctxStore{NewMemoryStore()}
		clock := &fakeClock{now: time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)}
		c := NewCache(p, store).WithClock(clock.Now)

		callerCtx, cancel := context.WithCancel(ctx)
		cancel()
		w, err := c.Get(callerCtx, 24.86, 67.00)
		require.NoError(t, err)
		assert.Equal(t, 40.0, w.CloudCoverPct)

		snap, ok, err := store.GetWeatherSnapshot(ctx, "24.86,67.00")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, clock.Now(), snap.FetchedAt)

		// the next caller is served from the store
		_, err = c.Get(ctx, 24.86, 67.00)
		require.NoError(t, err)
		assert.Equal(t, int32(1), p.calls.Load())
	})

	t.Run("concurrent misses share one upstream call", func(t *testing.T) {
		p := &fakeProvider{obs: testObservation(), block: make(chan struct{})}
		c, _, _ := newTestCache(p)

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = c.Get(ctx, 24.86, 67.00)
			}()
		}
		// let every goroutine reach the shared call before releasing it
		require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(p.block)
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.LessOrEqual(t, p.calls.Load(), int32(2))
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.GetWeatherSnapshot(ctx, "1.00,2.00")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutWeatherSnapshot(ctx, types.WeatherSnapshot{LocationKey: "1.00,2.00", CloudCoverPct: 10}))
	require.NoError(t, s.PutWeatherSnapshot(ctx, types.WeatherSnapshot{LocationKey: "1.00,2.00", CloudCoverPct: 20}))
	snap, ok, err := s.GetWeatherSnapshot(ctx, "1.00,2.00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, snap.CloudCoverPct)
}
