// Package geocache caches geocoding query results. Caching resolved lookups
// app-side is what the Nominatim usage policy asks of clients; the upstream
// is never hit twice for the same query while an entry is warm.
package geocache

import (
	"context"
	"sync"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
	"github.com/couchcryptid/crime-incident-service/internal/observability"
)

// Store holds cached result lists keyed by query.
type Store interface {
	Get(ctx context.Context, key string) ([]domain.Place, bool)
	Set(ctx context.Context, key string, places []domain.Place)
}

// Cached wraps a Geocoder with a Store.
type Cached struct {
	inner   domain.Geocoder
	store   Store
	metrics *observability.Metrics
}

// NewCached creates a cache decorator around a geocoder.
func NewCached(inner domain.Geocoder, store Store, metrics *observability.Metrics) *Cached {
	return &Cached{inner: inner, store: store, metrics: metrics}
}

func (c *Cached) Search(ctx context.Context, q domain.GeocodeQuery) ([]domain.Place, error) {
	key := cacheKey(q)
	if places, ok := c.store.Get(ctx, key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return places, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	places, err := c.inner.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if len(places) > 0 {
		c.store.Set(ctx, key, places)
	}
	return places, nil
}

func cacheKey(q domain.GeocodeQuery) string {
	if q.PostalCode != "" {
		return "pc:" + q.PostalCode
	}
	return "q:" + q.FreeText
}

// Memory is a thread-safe LRU Store.
type Memory struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.Place
	prev  *entry
	next  *entry
}

// NewMemory creates an in-process LRU store holding up to maxEntries queries.
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]domain.Place, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	m.moveToFront(e)
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, places []domain.Place) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		e.value = places
		m.moveToFront(e)
		return
	}

	e := &entry{key: key, value: places}
	m.entries[key] = e
	m.addToFront(e)

	if len(m.entries) > m.maxEntries {
		m.evictTail()
	}
}

func (m *Memory) moveToFront(e *entry) {
	if e == m.head {
		return
	}
	m.remove(e)
	m.addToFront(e)
}

func (m *Memory) addToFront(e *entry) {
	e.next = m.head
	e.prev = nil
	if m.head != nil {
		m.head.prev = e
	}
	m.head = e
	if m.tail == nil {
		m.tail = e
	}
}

func (m *Memory) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.tail = e.prev
	}
}

func (m *Memory) evictTail() {
	if m.tail == nil {
		return
	}
	delete(m.entries, m.tail.key)
	m.remove(m.tail)
}
