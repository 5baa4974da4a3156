package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Registry hands out one Cache per client key. Each client (device) owns an
// independent session slot. Clients that never sign out are dropped by Sweep
// once they sit idle.
type Registry struct {
	aggregator Aggregator
	opts       []Option
	now        func() time.Time

	mu     sync.Mutex
	caches map[string]*entry
}

type entry struct {
	cache    *Cache
	lastUsed time.Time
}

// NewRegistry constructs a Registry whose caches share aggregator and opts.
func NewRegistry(aggregator Aggregator, opts ...Option) *Registry {
	return &Registry{
		aggregator: aggregator,
		opts:       opts,
		now:        time.Now,
		caches:     make(map[string]*entry),
	}
}

// Get returns the cache for key, creating it on first use.
func (r *Registry) Get(key string) *Cache {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.caches[key]
	if !ok {
		e = &entry{cache: New(r.aggregator, r.opts...)}
		r.caches[key] = e
	}
	e.lastUsed = r.now()
	return e.cache
}

// Lookup returns the cache for key without creating one.
func (r *Registry) Lookup(key string) (*Cache, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.caches[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.cache, true
}

// Release ends the session held for key, waits for its abandoned work to
// return, and forgets the cache.
func (r *Registry) Release(key string) {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	e, ok := r.caches[key]
	delete(r.caches, key)
	r.mu.Unlock()

	if ok {
		e.cache.Close()
	}
}

// Sweep releases every cache not touched through Get or Lookup for longer
// than idle and reports how many were dropped. A non-positive idle disables
// eviction.
func (r *Registry) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var expired []*Cache
	for key, e := range r.caches {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e.cache)
			delete(r.caches, key)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	evictedCounter.Add(float64(len(expired)))
	return len(expired)
}

// Run sweeps idle caches every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Len reports how many client caches are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.caches)
}

// Close ends every session and waits for outstanding work.
func (r *Registry) Close() {
	r.mu.Lock()
	caches := make([]*Cache, 0, len(r.caches))
	for key, e := range r.caches {
		caches = append(caches, e.cache)
		delete(r.caches, key)
	}
	r.mu.Unlock()

	for _, c := range caches {
		c.Close()
	}
}
