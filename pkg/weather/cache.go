package weather

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/types"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAge       = 30 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
)

// Cache serves weather from a SnapshotStore and refreshes stale entries from
// a Provider. Concurrent refreshes of the same key share one upstream call.
type Cache struct {
	provider     Provider
	store        SnapshotStore
	maxAge       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	group singleflight.Group
}

// NewCache returns a cache with the default freshness and timeout.
func NewCache(provider Provider, store SnapshotStore) *Cache {
	return &Cache{
		provider:     provider,
		store:        store,
		maxAge:       DefaultMaxAge,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
}

// WithMaxAge sets how long a snapshot is considered fresh.
func (c *Cache) WithMaxAge(d time.Duration) *Cache {
	c.maxAge = d
	return c
}

// WithFetchTimeout bounds each upstream call.
func (c *Cache) WithFetchTimeout(d time.Duration) *Cache {
	c.fetchTimeout = d
	return c
}

// WithClock replaces the clock used for freshness checks.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the weather for a coordinate. A fresh snapshot is returned
// as-is. Otherwise the provider is asked for a new one; if that fails the
// stale snapshot is returned with Stale set, and only when there is no
// snapshot at all is ErrProviderUnavailable returned.
func (c *Cache) Get(ctx context.Context, lat, lon float64) (Weather, error) {
	key := LocationKey(lat, lon)

	snap, ok, err := c.store.GetWeatherSnapshot(ctx, key)
	if err != nil {
		// treat a broken store like a miss, the provider may still answer
		log.Ctx(ctx).WarnContext(ctx, "failed to read weather snapshot", slog.String("key", key), slog.Any("error", err))
		ok = false
	}
	if ok && c.now().Sub(snap.FetchedAt) < c.maxAge {
		return fromSnapshot(snap, false), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.refresh(ctx, key, lat, lon)
	})
	if err != nil {
		if ok {
			log.Ctx(ctx).WarnContext(
				ctx,
				"serving stale weather",
				slog.String("key", key),
				slog.Time("fetchedAt", snap.FetchedAt),
				slog.Any("error", err),
			)
			return fromSnapshot(snap, true), nil
		}
		return Weather{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return fromSnapshot(v.(types.WeatherSnapshot), false), nil
}

func (c *Cache) refresh(ctx context.Context, key string, lat, lon float64) (types.WeatherSnapshot, error) {
	// the shared call must not be canceled by whichever caller started it
	shared := context.WithoutCancel(ctx)
	fetchCtx, cancel := context.WithTimeout(shared, c.fetchTimeout)
	defer cancel()

	obs, err := c.provider.Current(fetchCtx, lat, lon)
	if err != nil {
		return types.WeatherSnapshot{}, err
	}
	snap := types.WeatherSnapshot{
		LocationKey:   key,
		Latitude:      lat,
		Longitude:     lon,
		CloudCoverPct: obs.CloudCoverPct,
		Sunrise:       obs.Sunrise,
		Sunset:        obs.Sunset,
		FetchedAt:     c.now(),
	}
	if err := c.store.PutWeatherSnapshot(shared, snap); err != nil {
		// the fetched value is still good for this request
		log.Ctx(ctx).ErrorContext(ctx, "failed to store weather snapshot", slog.String("key", key), slog.Any("error", err))
	}
	log.Ctx(ctx).DebugContext(ctx, "refreshed weather", slog.String("key", key), slog.Float64("cloudCover", obs.CloudCoverPct))
	return snap, nil
}

// MemoryStore is an in-process SnapshotStore. Snapshots are stored by value
// and the map is replaced on every write, so readers never observe a
// partially written entry.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]types.WeatherSnapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: map[string]types.WeatherSnapshot{}}
}

// GetWeatherSnapshot implements SnapshotStore.
func (m *MemoryStore) GetWeatherSnapshot(ctx context.Context, key string) (types.WeatherSnapshot, bool, error) {
	m.mu.RLock()
	snaps := m.snapshots
	m.mu.RUnlock()
	s, ok := snaps[key]
	return s, ok, nil
}

// PutWeatherSnapshot implements SnapshotStore.
func (m *MemoryStore) PutWeatherSnapshot(ctx context.Context, snap types.WeatherSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]types.WeatherSnapshot, len(m.snapshots)+1)
	for k, v := range m.snapshots {
		next[k] = v
	}
	next[snap.LocationKey] = snap
	m.snapshots = next
	return nil
}
