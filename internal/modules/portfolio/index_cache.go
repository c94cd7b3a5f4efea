package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// SnapshotStore is the persistent second tier of the index cache.
// Load returns only unexpired snapshots, LoadStale ignores expiry.
type SnapshotStore interface {
	Load(name string) (*domain.TargetIndex, error)
	LoadStale(name string) (*domain.TargetIndex, error)
	Save(index domain.TargetIndex, expiresAt time.Time) error
	Remove(name string) error
	RemoveAll() error
}

// CacheStats reports index cache usage. Hits are served from memory,
// SnapshotHits from an unexpired snapshot and StaleHits from an expired one
// after the provider failed. Misses count provider fetches.
type CacheStats struct {
	Entries      int    `json:"entries"`
	Hits         uint64 `json:"hits"`
	SnapshotHits uint64 `json:"snapshot_hits"`
	StaleHits    uint64 `json:"stale_hits"`
	Misses       uint64 `json:"misses"`
}

type cacheEntry struct {
	day   string
	index domain.TargetIndex
}

// IndexCache caches index compositions per (name, calendar day).
// Lookups go memory, then the snapshot store, then the provider. An entry
// fetched on one day is never served on the next, except that an expired
// snapshot stands in when the provider fails.
type IndexCache struct {
	provider domain.IndexProvider
	store    SnapshotStore
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry

	hits         atomic.Uint64
	snapshotHits atomic.Uint64
	staleHits    atomic.Uint64
	misses       atomic.Uint64

	log zerolog.Logger
}

// NewIndexCache creates an index cache. store may be nil for a memory-only cache.
func NewIndexCache(provider domain.IndexProvider, store SnapshotStore, log zerolog.Logger) *IndexCache {
	return &IndexCache{
		provider: provider,
		store:    store,
		now:      time.Now,
		entries:  make(map[string]cacheEntry),
		log:      log.With().Str("service", "index_cache").Logger(),
	}
}

// WithClock replaces the clock that decides the calendar day
func (c *IndexCache) WithClock(now func() time.Time) *IndexCache {
	c.now = now
	return c
}

func cacheKey(name string) string {
	return utils.NormalizeSymbol(name)
}

// Get returns the composition of an index for the current day.
// The returned value is a copy and may be modified freely.
func (c *IndexCache) Get(ctx context.Context, name string) (*domain.TargetIndex, error) {
	key := cacheKey(name)
	today := c.now()
	day := today.Format(dateLayout)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && entry.day == day {
		c.hits.Add(1)
		clone := cloneIndex(entry.index)
		return &clone, nil
	}

	if c.store != nil {
		snapshot, err := c.store.Load(key)
		if err != nil {
			c.log.Warn().Err(err).Str("index", key).Msg("Failed to load index snapshot, fetching from provider")
		} else if snapshot != nil {
			c.snapshotHits.Add(1)
			c.put(key, day, *snapshot)
			clone := cloneIndex(*snapshot)
			return &clone, nil
		}
	}

	c.misses.Add(1)

	index, err := c.provider.GetIndex(ctx, key)
	if err != nil {
		if stale := c.loadStale(key, err); stale != nil {
			return stale, nil
		}
		return nil, fmt.Errorf("failed to fetch index %s: %w", key, err)
	}

	c.put(key, day, *index)

	if c.store != nil {
		if err := c.store.Save(*index, nextMidnight(today)); err != nil {
			c.log.Warn().Err(err).Str("index", key).Msg("Failed to persist index snapshot")
		}
	}

	c.log.Debug().
		Str("index", key).
		Str("date", index.Date).
		Int("constituents", len(index.Constituents)).
		Msg("Index fetched")

	clone := cloneIndex(*index)
	return &clone, nil
}

// loadStale returns an expired snapshot after a provider failure. It is not
// put in memory, so the next lookup asks the provider again. An index the
// provider reports as unknown gets no fallback.
func (c *IndexCache) loadStale(key string, cause error) *domain.TargetIndex {
	if c.store == nil || errors.Is(cause, domain.ErrIndexNotFound) {
		return nil
	}

	snapshot, err := c.store.LoadStale(key)
	if err != nil {
		c.log.Warn().Err(err).Str("index", key).Msg("Failed to load stale index snapshot")
		return nil
	}
	if snapshot == nil {
		return nil
	}

	c.staleHits.Add(1)
	c.log.Warn().
		Err(cause).
		Str("index", key).
		Str("date", snapshot.Date).
		Msg("Index provider failed, serving stale snapshot")

	stale := cloneIndex(*snapshot)
	return &stale
}

func (c *IndexCache) put(key, day string, index domain.TargetIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{day: day, index: cloneIndex(index)}
}

// Invalidate drops one index from both tiers
func (c *IndexCache) Invalidate(name string) error {
	key := cacheKey(name)

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Remove(key); err != nil {
			return fmt.Errorf("failed to invalidate index %s: %w", key, err)
		}
	}
	return nil
}

// InvalidateAll drops every index from both tiers
func (c *IndexCache) InvalidateAll() error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.RemoveAll(); err != nil {
			return fmt.Errorf("failed to invalidate index cache: %w", err)
		}
	}
	return nil
}

// IndexSaved drops a stale composition after a new one was stored
func (c *IndexCache) IndexSaved(index domain.TargetIndex) {
	if err := c.Invalidate(index.Name); err != nil {
		c.log.Warn().Err(err).Str("index", index.Name).Msg("Failed to invalidate cached index")
	}
}

// Stats returns cache usage counters
func (c *IndexCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Entries:      entries,
		Hits:         c.hits.Load(),
		SnapshotHits: c.snapshotHits.Load(),
		StaleHits:    c.staleHits.Load(),
		Misses:       c.misses.Load(),
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func cloneIndex(index domain.TargetIndex) domain.TargetIndex {
	clone := index
	if index.Constituents != nil {
		clone.Constituents = append([]domain.IndexConstituent(nil), index.Constituents...)
	}
	return clone
}
