package geopoints

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds one shared read of the underlying source. The read is
// detached from the callers' contexts, so this is what stops it.
const loadTimeout = 2 * time.Minute

// Cache is a Source that keeps the most recent stores in memory. Concurrent
// loads of the same date share one read of the underlying source. Failed
// loads are not cached.
type Cache struct {
	source Source
	keep   int
	logger *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	stores map[string]*Store
}

// NewCache wraps source, keeping at most keep dates (minimum 1).
func NewCache(source Source, keep int, logger *slog.Logger) *Cache {
	if keep < 1 {
		keep = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source: source,
		keep:   keep,
		logger: logger,
		stores: make(map[string]*Store),
	}
}

// Load returns the cached store for date, loading it on first use.
func (c *Cache) Load(ctx context.Context, date string) (*Store, error) {
	c.mu.RLock()
	store, ok := c.stores[date]
	c.mu.RUnlock()
	if ok {
		return store, nil
	}

	// The shared read must outlive any one caller: a caller that gives up
	// stops waiting but does not fail the others.
	ch := c.group.DoChan(date, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		s, err := c.source.Load(loadCtx, date)
		if err != nil {
			return nil, err
		}
		c.put(date, s)
		c.logger.InfoContext(loadCtx, "point file loaded", "date", date, "records", s.Len())
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.DebugContext(ctx, "point file load shared", "date", date)
		}
		return res.Val.(*Store), nil
	}
}

// AvailableDates delegates to the underlying source.
func (c *Cache) AvailableDates(ctx context.Context) ([]string, error) {
	return c.source.AvailableDates(ctx)
}

// Dates returns the dates currently held, oldest first.
func (c *Cache) Dates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.stores))
	for d := range c.stores {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// put stores s and evicts the oldest dates beyond the limit.
func (c *Cache) put(date string, s *Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores[date] = s
	if len(c.stores) <= c.keep {
		return
	}
	dates := make([]string, 0, len(c.stores))
	for d := range c.stores {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates[:len(dates)-c.keep] {
		delete(c.stores, d)
	}
}
