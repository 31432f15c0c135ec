// Package cache provides an in-process LRU cache with TTL expiry and a
// manager that sweeps expired entries in the background.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	applog "budgetbook/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Loader fills a cache on misses. Concurrent misses for the same key share
// one call to load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// GetOrLoad returns the cached value for key, or stores and returns the
// result of load. Errors are not cached.
func (l *Loader[T]) GetOrLoad(key string, load func() (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget drops key from the cache.
func (l *Loader[T]) Forget(key string) {
	l.cache.Delete(key)
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
	started     bool
	logger      *applog.Logger
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{
		caches:      make([]Cleaner, 0),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		logger:      applog.ForComponent(applog.ComponentCache),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

// CleanNow sweeps every registered cache once and returns the number of
// entries removed.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired cache entries removed", applog.FieldCount, n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine. It is safe to call more than
// once and without a prior StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.cleanupDone
		}
	})
}
