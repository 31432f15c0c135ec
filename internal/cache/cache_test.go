package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clock.Advance(30 * time.Second)
	c.Set("b", 20)
	clock.Advance(31 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should be expired")
	}
	if v, ok := c.Get("b"); !ok || v != 20 {
		t.Errorf("Get(b) = %d, %v; overwrite should refresh the TTL", v, ok)
	}

	clock.Advance(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after cleanup", c.Size())
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}
}

func TestLoader_SharesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	l := NewLoader[int](c)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.GetOrLoad("k", load)
			if err != nil {
				t.Errorf("GetOrLoad error = %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("load called %d times, want 1", calls.Load())
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("results[%d] = %d", i, v)
		}
	}
}

func TestLoader_DoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	l := NewLoader[int](c)

	boom := errors.New("boom")
	if _, err := l.GetOrLoad("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("GetOrLoad error = %v, want boom", err)
	}
	if c.Size() != 0 {
		t.Error("failed loads must not be cached")
	}

	v, err := l.GetOrLoad("k", func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("GetOrLoad = %d, %v", v, err)
	}

	l.Forget("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Forget should drop the key")
	}
}

func TestManager_CleansRegisteredCaches(t *testing.T) {
	a, clockA := newTestCache(10, time.Minute)
	b, clockB := newTestCache(10, time.Minute)
	a.Set("x", 1)
	b.Set("y", 2)
	b.Set("z", 3)
	clockA.Advance(2 * time.Minute)
	clockB.Advance(2 * time.Minute)

	m := NewManager()
	m.Register(a)
	m.Register(b)
	if n := m.CleanNow(); n != 3 {
		t.Errorf("CleanNow() = %d, want 3", n)
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager()
	m.Stop()
	m.Stop()

	started := NewManager()
	started.StartCleanup(time.Millisecond)
	started.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	started.Stop()
	started.Stop()
}

func TestLRUCache_ZeroTTLDisablesCaching(t *testing.T) {
	c, _ := newTestCache(10, 0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero ttl should never hit")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}
