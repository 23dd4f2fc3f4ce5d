package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *time.Time) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](size, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s missing", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, now := newTestCache(10, 30*time.Second)
	c.Set("limit:10", 10)
	c.Set("limit:5", 5)

	*now = now.Add(29 * time.Second)
	if v, ok := c.Get("limit:10"); !ok || v != 10 {
		t.Fatalf("Get = %d, %v", v, ok)
	}

	*now = now.Add(2 * time.Second)
	if _, ok := c.Get("limit:10"); ok {
		t.Error("entry should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d", c.Size())
	}
}

func TestLRUOverwriteAndPurge(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get = %d", v)
	}
	c.Delete("a")
	c.Delete("missing")
	c.Set("b", 1)
	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size after purge = %d", c.Size())
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRUCache[int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*i)%80)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Size() > 50 {
		t.Errorf("Size = %d exceeds max", c.Size())
	}
}

func TestGetOrLoadSharesOneLoad(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		loads.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrLoad(context.Background(), "top", load)
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("load called %d times, want 1", n)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("caller %d got %d", i, v)
		}
	}
	if _, hit, _ := c.GetOrLoad(context.Background(), "top", load); !hit {
		t.Error("second call should hit the cache")
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	boom := errors.New("boom")
	if _, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d after failed load", c.Size())
	}
	v, hit, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || hit || v != 7 {
		t.Errorf("GetOrLoad = %d, %v, %v", v, hit, err)
	}
}

func TestManagerCleanNowAndStop(t *testing.T) {
	c, now := newTestCache(10, time.Second)
	c.Set("x", 1)
	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)

	*now = now.Add(2 * time.Second)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow = %d", n)
	}
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()
}
