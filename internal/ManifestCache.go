package internal

import (
	"sync"
	"time"
)

// ManifestCacheTTL is how long a cached manifest is served before a
// refetch is required.
const ManifestCacheTTL = time.Hour

// CachedManifestEntry owns one manifest plus its capture timestamp.
// Entries are replaced, never mutated.
type CachedManifestEntry struct {
	Manifest  *GameManifest
	FetchedAt time.Time
}

// ManifestCache is a process-lifetime, mutex-guarded manifest store keyed
// by app id. Concurrent fetches for the same app id are not deduplicated;
// the second store wins, which is acceptable because entries are
// immutable snapshots.
type ManifestCache struct {
	mu      sync.Mutex
	entries map[string]*CachedManifestEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewManifestCache returns an empty cache with the default TTL.
func NewManifestCache() *ManifestCache {
	return &ManifestCache{
		entries: make(map[string]*CachedManifestEntry),
		ttl:     ManifestCacheTTL,
		now:     time.Now,
	}
}

// Get returns the cached manifest for appId if it is younger than the TTL.
func (c *ManifestCache) Get(appId string) (*GameManifest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[appId]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.FetchedAt) > c.ttl {
		return nil, false
	}
	return entry.Manifest, true
}

// Put replaces the entry for appId with a freshly timestamped one.
func (c *ManifestCache) Put(appId string, manifest *GameManifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[appId] = &CachedManifestEntry{
		Manifest:  manifest,
		FetchedAt: c.now(),
	}
}

// Clear drops every entry.
func (c *ManifestCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CachedManifestEntry)
	PushLogInfo(c, "manifest cache cleared")
}

// Len reports the number of entries, fresh or stale.
func (c *ManifestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
