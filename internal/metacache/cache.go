// Package metacache caches the per-company security metadata aggregate,
// keyed by the manifest version (and path fingerprint) that produced it.
// A version mismatch on access triggers a full recompute. Two callers
// racing on the same version bump may both recompute; that is wasteful
// but safe, since both produce the same result and the cache converges
// to one of them.
package metacache

import (
	"context"
	"log"
	"sync"

	"github.com/pitlake/pitlake/internal/dataset"
	"github.com/pitlake/pitlake/pkg/types"
)

// entry is one dataset's cached aggregate and the manifest identity that
// produced it.
type entry struct {
	version     uint64
	fingerprint uint64
	byKey       map[string]types.SecurityMetadata
	keys        []string
}

// ComputeFunc produces the metadata aggregate for the current pinned
// manifest. It runs without the cache lock held.
type ComputeFunc func(ctx context.Context) ([]types.SecurityMetadata, error)

// Cache is the per-dataset versioned metadata cache. Safe for concurrent
// use; reads never block on recomputes for other datasets.
type Cache struct {
	mu      sync.RWMutex
	entries map[dataset.Kind]*entry

	// onRecompute, when set, is invoked after each recompute. Wired to
	// observability counters by the query service.
	onRecompute func(kind dataset.Kind)
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[dataset.Kind]*entry)}
}

// SetRecomputeHook registers a callback invoked after each recompute.
func (c *Cache) SetRecomputeHook(fn func(kind dataset.Kind)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRecompute = fn
}

// Get returns the metadata aggregate for the dataset at the pinned
// manifest version, recomputing when the cached entry was produced by a
// different version or path set. The returned map and key slice are
// shared snapshots: callers must not mutate them.
func (c *Cache) Get(ctx context.Context, kind dataset.Kind, version, fingerprint uint64, compute ComputeFunc) (map[string]types.SecurityMetadata, []string, error) {
	c.mu.RLock()
	e, ok := c.entries[kind]
	if ok && e.version == version && e.fingerprint == fingerprint {
		c.mu.RUnlock()
		return e.byKey, e.keys, nil
	}
	c.mu.RUnlock()

	// Recompute outside the lock. Concurrent recomputes for the same
	// version are permitted; last writer wins with an identical result.
	metas, err := compute(ctx)
	if err != nil {
		return nil, nil, err
	}

	byKey := make(map[string]types.SecurityMetadata, len(metas))
	keys := make([]string, 0, len(metas))
	for _, m := range metas {
		byKey[m.CompanyKey] = m
		keys = append(keys, m.CompanyKey)
	}

	c.mu.Lock()
	c.entries[kind] = &entry{
		version:     version,
		fingerprint: fingerprint,
		byKey:       byKey,
		keys:        keys,
	}
	hook := c.onRecompute
	c.mu.Unlock()

	log.Printf("metacache: recomputed %s metadata for manifest v%d (%d companies)", kind, version, len(keys))
	if hook != nil {
		hook(kind)
	}
	return byKey, keys, nil
}

// Invalidate drops the cached entry for a dataset. Callers that know a
// sync just completed can use it to avoid serving a stale entry until
// the next natural access; version comparison already guarantees
// correctness without it.
func (c *Cache) Invalidate(kind dataset.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, kind)
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[dataset.Kind]*entry)
}

// CachedVersion reports the manifest version of the cached entry for a
// dataset, if any.
func (c *Cache) CachedVersion(kind dataset.Kind) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[kind]
	if !ok {
		return 0, false
	}
	return e.version, true
}
