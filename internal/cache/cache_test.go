package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onlinefem/onlinefem/internal/models"
)

func numbers(method string) models.NumberSet {
	return models.NumberSet{
		Numbers:   []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Method:    method,
		FetchedAt: time.Now(),
	}
}

func TestInMemoryCache_SetAndGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	want := numbers("GET")
	if err := c.Set(ctx, "numbers", want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "numbers")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want hit")
	}
	if got.Method != want.Method || len(got.Numbers) != len(want.Numbers) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestInMemoryCache_MissOnUnknownKey(t *testing.T) {
	c := NewInMemoryCache()
	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want miss for unknown key")
	}
}

func TestInMemoryCache_ExpiredEntryMissesButServesStale(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "numbers", numbers("GET"), -time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok, _ := c.Get(ctx, "numbers"); ok {
		t.Error("Get() ok = true, want miss for expired entry")
	}

	got, ok, err := c.GetStale(ctx, "numbers", time.Minute)
	if err != nil {
		t.Fatalf("GetStale() error = %v", err)
	}
	if !ok {
		t.Fatal("GetStale() ok = false, want stale hit within the stale window")
	}
	if len(got.Numbers) != 10 {
		t.Errorf("GetStale() numbers len = %d, want 10", len(got.Numbers))
	}
}

func TestInMemoryCache_StaleBound(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	// expired well past any reasonable stale window
	if err := c.Set(ctx, "numbers", numbers("GET"), -time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.GetStale(ctx, "numbers", time.Minute); ok {
		t.Error("GetStale() ok = true, want miss past the stale bound")
	}
	// entry should have been dropped entirely
	if _, ok, _ := c.GetStale(ctx, "numbers", 2*time.Hour); ok {
		t.Error("GetStale() ok = true, want entry removed after stale bound exceeded")
	}
}

func TestInMemoryCache_OverwriteRefreshesTTL(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "numbers", numbers("GET"), -time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "numbers", numbers("POST"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, _ := c.Get(ctx, "numbers")
	if !ok {
		t.Fatal("Get() ok = false after overwrite with fresh TTL")
	}
	if got.Method != "POST" {
		t.Errorf("Get() method = %q, want overwritten value", got.Method)
	}
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "numbers", numbers("GET"), time.Minute)
			_, _, _ = c.Get(ctx, "numbers")
			_, _, _ = c.GetStale(ctx, "numbers", time.Minute)
		}()
	}
	wg.Wait()
}

func TestMemcachedCache_ParseAddrs(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"localhost:11211", 1},
		{"a:11211, b:11211", 2},
		{" , ", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := len(parseAddrs(tt.in)); got != tt.want {
			t.Errorf("parseAddrs(%q) len = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMemcachedCache_ContextCancelled(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 100*time.Millisecond, 1, time.Minute)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Get(ctx, "numbers"); err == nil {
		t.Error("Get() with cancelled context should return error")
	}
	if err := c.Set(ctx, "numbers", numbers("GET"), time.Minute); err == nil {
		t.Error("Set() with cancelled context should return error")
	}
}
