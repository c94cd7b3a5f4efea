package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/indextracker/internal/clientdata"
	"github.com/aristath/indextracker/internal/domain"
	testingpkg "github.com/aristath/indextracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu      sync.Mutex
	indices map[string]domain.TargetIndex
	calls   int
	err     error
}

func newStubProvider(indices ...domain.TargetIndex) *stubProvider {
	p := &stubProvider{indices: make(map[string]domain.TargetIndex)}
	for _, index := range indices {
		p.indices[index.Name] = index
	}
	return p
}

func (p *stubProvider) GetIndex(ctx context.Context, name string) (*domain.TargetIndex, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	index, ok := p.indices[name]
	if !ok {
		return nil, domain.ErrIndexNotFound
	}
	return &index, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// memoryStore keeps fresh snapshots in snapshots; expired ones are only
// visible through LoadStale.
type memoryStore struct {
	snapshots map[string]domain.TargetIndex
	expired   map[string]domain.TargetIndex
	expiries  map[string]time.Time
	loadErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		snapshots: make(map[string]domain.TargetIndex),
		expired:   make(map[string]domain.TargetIndex),
		expiries:  make(map[string]time.Time),
	}
}

func (s *memoryStore) Load(name string) (*domain.TargetIndex, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	index, ok := s.snapshots[name]
	if !ok {
		return nil, nil
	}
	return &index, nil
}

func (s *memoryStore) LoadStale(name string) (*domain.TargetIndex, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if index, ok := s.snapshots[name]; ok {
		return &index, nil
	}
	if index, ok := s.expired[name]; ok {
		return &index, nil
	}
	return nil, nil
}

func (s *memoryStore) Save(index domain.TargetIndex, expiresAt time.Time) error {
	s.snapshots[index.Name] = index
	s.expiries[index.Name] = expiresAt
	return nil
}

func (s *memoryStore) Remove(name string) error {
	delete(s.snapshots, name)
	delete(s.expired, name)
	delete(s.expiries, name)
	return nil
}

func (s *memoryStore) RemoveAll() error {
	s.snapshots = make(map[string]domain.TargetIndex)
	s.expired = make(map[string]domain.TargetIndex)
	s.expiries = make(map[string]time.Time)
	return nil
}

func imoex() domain.TargetIndex {
	return domain.TargetIndex{
		Name: "IMOEX",
		Date: "2026-10-19",
		Constituents: []domain.IndexConstituent{
			{Ticker: "SBER", Weight: 60, LotSize: 10, LastPrice: 250},
			{Ticker: "GAZP", Weight: 40, LotSize: 10, LastPrice: 160},
		},
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCache(provider domain.IndexProvider, store SnapshotStore, clock *fakeClock) *IndexCache {
	return NewIndexCache(provider, store, zerolog.New(nil).Level(zerolog.Disabled)).WithClock(clock.Now)
}

func TestIndexCache_SameDayHitsMemory(t *testing.T) {
	provider := newStubProvider(imoex())
	clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	cache := newTestCache(provider, nil, clock)
	ctx := context.Background()

	first, err := cache.Get(ctx, "imoex")
	require.NoError(t, err)
	assert.Equal(t, "IMOEX", first.Name)

	clock.now = clock.now.Add(12 * time.Hour)
	second, err := cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, provider.callCount())
	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestIndexCache_NextDayRefetches(t *testing.T) {
	provider := newStubProvider(imoex())
	clock := &fakeClock{now: time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)}
	cache := newTestCache(provider, nil, clock)
	ctx := context.Background()

	_, err := cache.Get(ctx, "IMOEX")
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = cache.Get(ctx, "IMOEX")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.callCount())
}

func TestIndexCache_ReturnsCopies(t *testing.T) {
	provider := newStubProvider(imoex())
	clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	cache := newTestCache(provider, nil, clock)
	ctx := context.Background()

	first, err := cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	first.Constituents[0].Weight = 0

	second, err := cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, 60.0, second.Constituents[0].Weight)
}

func TestIndexCache_SnapshotTier(t *testing.T) {
	t.Run("provider result is persisted until next midnight", func(t *testing.T) {
		provider := newStubProvider(imoex())
		store := newMemoryStore()
		clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)}
		cache := newTestCache(provider, store, clock)

		_, err := cache.Get(context.Background(), "IMOEX")
		require.NoError(t, err)

		require.Contains(t, store.snapshots, "IMOEX")
		assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), store.expiries["IMOEX"])
	})

	t.Run("snapshot is served without the provider", func(t *testing.T) {
		provider := newStubProvider()
		store := newMemoryStore()
		require.NoError(t, store.Save(imoex(), time.Now().Add(time.Hour)))
		clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)}
		cache := newTestCache(provider, store, clock)

		index, err := cache.Get(context.Background(), "IMOEX")
		require.NoError(t, err)
		assert.Len(t, index.Constituents, 2)
		assert.Equal(t, 0, provider.callCount())

		stats := cache.Stats()
		assert.Equal(t, uint64(1), stats.SnapshotHits)
		assert.Zero(t, stats.Hits)
		assert.Zero(t, stats.Misses)

		_, err = cache.Get(context.Background(), "IMOEX")
		require.NoError(t, err)
		stats = cache.Stats()
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.SnapshotHits)
		assert.Zero(t, stats.Misses)
	})

	t.Run("snapshot load failure falls back to provider", func(t *testing.T) {
		provider := newStubProvider(imoex())
		store := newMemoryStore()
		store.loadErr = errors.New("disk on fire")
		clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)}
		cache := newTestCache(provider, store, clock)

		_, err := cache.Get(context.Background(), "IMOEX")
		require.NoError(t, err)
		assert.Equal(t, 1, provider.callCount())
	})
}

func TestIndexCache_StaleFallback(t *testing.T) {
	t.Run("expired snapshot stands in for a failing provider", func(t *testing.T) {
		provider := newStubProvider(imoex())
		provider.err = errors.New("iss unavailable")
		store := newMemoryStore()
		yesterday := imoex()
		yesterday.Date = "2026-10-18"
		store.expired["IMOEX"] = yesterday
		clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
		cache := newTestCache(provider, store, clock)
		ctx := context.Background()

		index, err := cache.Get(ctx, "IMOEX")
		require.NoError(t, err)
		assert.Equal(t, yesterday, *index)

		stats := cache.Stats()
		assert.Equal(t, uint64(1), stats.StaleHits)
		assert.Equal(t, uint64(1), stats.Misses)
		assert.Equal(t, 0, stats.Entries)

		// the provider is asked again once it recovers
		provider.err = nil
		index, err = cache.Get(ctx, "IMOEX")
		require.NoError(t, err)
		assert.Equal(t, "2026-10-19", index.Date)
		assert.Equal(t, 2, provider.callCount())
	})

	t.Run("no snapshot keeps the provider error", func(t *testing.T) {
		provider := newStubProvider()
		provider.err = errors.New("iss unavailable")
		clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
		cache := newTestCache(provider, newMemoryStore(), clock)

		index, err := cache.Get(context.Background(), "IMOEX")
		assert.Nil(t, index)
		assert.ErrorContains(t, err, "iss unavailable")
		assert.Zero(t, cache.Stats().StaleHits)
	})

	t.Run("unknown index gets no fallback", func(t *testing.T) {
		provider := newStubProvider()
		store := newMemoryStore()
		store.expired["IMOEX"] = imoex()
		clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
		cache := newTestCache(provider, store, clock)

		_, err := cache.Get(context.Background(), "IMOEX")
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
		assert.Zero(t, cache.Stats().StaleHits)
	})
}

func TestIndexCache_Invalidate(t *testing.T) {
	provider := newStubProvider(imoex())
	store := newMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	cache := newTestCache(provider, store, clock)
	ctx := context.Background()

	_, err := cache.Get(ctx, "IMOEX")
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate("imoex"))
	assert.Empty(t, store.snapshots)
	assert.Equal(t, 0, cache.Stats().Entries)

	_, err = cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount())

	cache.IndexSaved(imoex())
	_, err = cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, 3, provider.callCount())
}

func TestIndexCache_InvalidateAll(t *testing.T) {
	other := imoex()
	other.Name = "RTSI"
	provider := newStubProvider(imoex(), other)
	store := newMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	cache := newTestCache(provider, store, clock)
	ctx := context.Background()

	_, err := cache.Get(ctx, "IMOEX")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "RTSI")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Stats().Entries)

	require.NoError(t, cache.InvalidateAll())
	assert.Equal(t, 0, cache.Stats().Entries)
	assert.Empty(t, store.snapshots)
}

func TestIndexCache_ProviderError(t *testing.T) {
	provider := newStubProvider()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	cache := newTestCache(provider, newMemoryStore(), clock)

	index, err := cache.Get(context.Background(), "MISSING")
	assert.Nil(t, index)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestIndexCache_WithClientDataStore(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	defer cleanup()

	clock := &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	repo := clientdata.NewRepository(db.Conn()).WithClock(clock.Now)
	store := clientdata.NewIndexSnapshots(repo)
	ctx := context.Background()

	provider := newStubProvider(imoex())
	_, err := newTestCache(provider, store, clock).Get(ctx, "IMOEX")
	require.NoError(t, err)

	// A fresh cache over the same database is served from the snapshot.
	empty := newStubProvider()
	index, err := newTestCache(empty, store, clock).Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, imoex(), *index)
	assert.Equal(t, 0, empty.callCount())

	// After midnight the snapshot has expired.
	clock.now = time.Date(2026, 10, 20, 0, 0, 1, 0, time.UTC)
	_, err = newTestCache(empty, store, clock).Get(ctx, "IMOEX")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)

	// An unreachable provider is covered by the expired snapshot.
	down := newStubProvider()
	down.err = errors.New("iss unavailable")
	stale := newTestCache(down, store, clock)
	index, err = stale.Get(ctx, "IMOEX")
	require.NoError(t, err)
	assert.Equal(t, imoex(), *index)
	assert.Equal(t, uint64(1), stale.Stats().StaleHits)
}
