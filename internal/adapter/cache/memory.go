// Package cache provides fingerprint-keyed result stores with TTL
// semantics. Two backends exist: an in-process map for single-instance
// deployments and a Redis store for shared deployments. Both implement
// domain.CacheStore.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

type memoryEntry struct {
	result    *domain.RouteResult
	createdAt time.Time
	expiresAt time.Time
}

// Memory is a TTL map store. Expiry is lazy: entries are dropped when a
// Get finds them stale or when the soft cap forces an eviction sweep.
// Safe for concurrent use.
type Memory struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*memoryEntry

	// test seam
	now func() time.Time
}

// NewMemory builds an in-process store. capacity is a soft cap; when it
// is exceeded the oldest entries by creation time are evicted first.
func NewMemory(ttl time.Duration, capacity int) *Memory {
	return &Memory{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

// Get returns the cached result for a fingerprint, dropping it when the
// TTL has lapsed.
func (m *Memory) Get(_ context.Context, fingerprint string) (*domain.RouteResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[fingerprint]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, fingerprint)
		return nil, false, nil
	}
	return e.result, true, nil
}

// Set stores a result under its fingerprint, evicting oldest entries
// when the soft cap is exceeded.
func (m *Memory) Set(_ context.Context, fingerprint string, r *domain.RouteResult) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[fingerprint] = &memoryEntry{
		result:    r,
		createdAt: now,
		expiresAt: now.Add(m.ttl),
	}
	if m.capacity > 0 && len(m.entries) > m.capacity {
		m.evictLocked()
	}
	return nil
}

// evictLocked first discards expired entries, then removes oldest-first
// until the store is back under the cap.
func (m *Memory) evictLocked() {
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	for len(m.entries) > m.capacity {
		oldestKey := ""
		var oldestAt time.Time
		for k, e := range m.entries {
			if oldestKey == "" || e.createdAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.createdAt
			}
		}
		delete(m.entries, oldestKey)
	}
}

// Len reports the current entry count, expired entries included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Disabled is the no-op store used when caching is switched off. Every
// Get misses and Set discards.
type Disabled struct{}

// NewDisabled returns the no-op store.
func NewDisabled() Disabled { return Disabled{} }

// Get always misses.
func (Disabled) Get(context.Context, string) (*domain.RouteResult, bool, error) {
	return nil, false, nil
}

// Set discards the result.
func (Disabled) Set(context.Context, string, *domain.RouteResult) error { return nil }
