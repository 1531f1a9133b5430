// Package lrucache provides the capacity-bounded cache which sits in front of
// node storage. It is only ever an accelerator: a miss must always be answered
// from the backing store.
package lrucache

import (
	"fmt"
	"sync"

	arc "github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type Policy string

const (
	// PolicyLRU evicts the least recently used entry.
	PolicyLRU Policy = "lru"
	// PolicyARC uses adaptive replacement, balancing recency against frequency.
	PolicyARC Policy = "arc"
)

// ParsePolicy accepts the policy names used on the command line. An empty name means PolicyLRU.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLRU:
		return PolicyLRU, nil
	case PolicyARC:
		return PolicyARC, nil
	default:
		return "", fmt.Errorf("unknown cache policy: %q", s)
	}
}

// the operations both hashicorp caches share, normalized
type backing[K comparable, V any] interface {
	Get(key K) (V, bool)
	// returns true if adding the entry pushed another one out
	Add(key K, value V) bool
	Remove(key K) bool
	Contains(key K) bool
	Len() int
	Keys() []K
	Purge()
}

type lruBacking[K comparable, V any] struct {
	*lru.Cache[K, V]
}

type arcBacking[K comparable, V any] struct {
	c    *arc.ARCCache[K, V]
	size int
}

func (a *arcBacking[K, V]) Get(key K) (V, bool) {
	return a.c.Get(key)
}

func (a *arcBacking[K, V]) Add(key K, value V) bool {
	// ARC does not report evictions, so infer one from a full cache taking a new key
	evict := !a.c.Contains(key) && a.c.Len() >= a.size
	a.c.Add(key, value)
	return evict
}

func (a *arcBacking[K, V]) Remove(key K) bool {
	present := a.c.Contains(key)
	a.c.Remove(key)
	return present
}

func (a *arcBacking[K, V]) Contains(key K) bool {
	return a.c.Contains(key)
}

func (a *arcBacking[K, V]) Len() int {
	return a.c.Len()
}

func (a *arcBacking[K, V]) Keys() []K {
	return a.c.Keys()
}

func (a *arcBacking[K, V]) Purge() {
	a.c.Purge()
}

// Cache is a fixed capacity map. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	lk     sync.Mutex
	name   string
	size   int
	policy Policy
	b      backing[K, V]

	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

// New creates a cache holding at most size entries. name labels the cache's metrics.
func New[K comparable, V any](name string, size int, policy Policy) (*Cache[K, V], error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache %q: size must be positive, got %d", name, size)
	}

	c := &Cache[K, V]{
		name:      name,
		size:      size,
		policy:    policy,
		hits:      cacheHits.WithLabelValues(name),
		misses:    cacheMisses.WithLabelValues(name),
		evictions: cacheEvictions.WithLabelValues(name),
	}

	switch policy {
	case "", PolicyLRU:
		l, err := lru.New[K, V](size)
		if err != nil {
			return nil, err
		}
		c.policy = PolicyLRU
		c.b = lruBacking[K, V]{l}
	case PolicyARC:
		a, err := arc.NewARC[K, V](size)
		if err != nil {
			return nil, err
		}
		c.b = &arcBacking[K, V]{c: a, size: size}
	default:
		return nil, fmt.Errorf("cache %q: unknown policy %q", name, policy)
	}
	return c, nil
}

func (c *Cache[K, V]) Name() string {
	return c.name
}

func (c *Cache[K, V]) Policy() Policy {
	return c.policy
}

// Cap returns the maximum number of entries.
func (c *Cache[K, V]) Cap() int {
	return c.size
}

// Get returns the cached value for key and marks it as most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.lk.Lock()
	defer c.lk.Unlock()

	v, ok := c.b.Get(key)
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return v, ok
}

// Put inserts or refreshes an entry, evicting if the cache is over capacity. It reports whether an eviction happened.
func (c *Cache[K, V]) Put(key K, value V) bool {
	c.lk.Lock()
	defer c.lk.Unlock()

	evicted := c.b.Add(key, value)
	if evicted {
		c.evictions.Inc()
	}
	return evicted
}

// Remove drops key, reporting whether it was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.b.Remove(key)
}

// Contains checks for key without touching its recency.
func (c *Cache[K, V]) Contains(key K) bool {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.b.Contains(key)
}

func (c *Cache[K, V]) Len() int {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.b.Len()
}

// Keys returns the cached keys. For PolicyLRU they are ordered from least to most recently used.
func (c *Cache[K, V]) Keys() []K {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.b.Keys()
}

func (c *Cache[K, V]) Purge() {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.b.Purge()
}
