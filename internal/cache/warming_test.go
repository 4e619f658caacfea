package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/onlinefem/onlinefem/internal/models"
)

// fakeFetcher records fetched names and fails the ones listed in failNames.
type fakeFetcher struct {
	mu        sync.Mutex
	fetched   []string
	failNames map[string]bool
}

func (f *fakeFetcher) GetNumbers(ctx context.Context, name string) (models.NumberSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, name)
	if f.failNames[name] {
		return models.NumberSet{}, errors.New("solver down")
	}
	return models.NumberSet{Numbers: []int{0, 1, 2}, Method: "POST"}, nil
}

func TestCacheWarmer_WarmFetchesAllNames(t *testing.T) {
	fetcher := &fakeFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)

	if err := warmer.Warm(context.Background(), []string{"numbers", "primes"}); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("Warm() fetched %d names, want 2", len(fetcher.fetched))
	}
}

func TestCacheWarmer_WarmAggregatesErrors(t *testing.T) {
	fetcher := &fakeFetcher{failNames: map[string]bool{"primes": true}}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"numbers", "primes"})
	if err == nil {
		t.Fatal("Warm() expected error when one name fails, got nil")
	}
	if !strings.Contains(err.Error(), "primes") {
		t.Errorf("Warm() error = %v, want mention of failed name", err)
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("Warm() fetched %d names, want all names attempted despite failure", len(fetcher.fetched))
	}
}

func TestCacheWarmer_WarmEmptyList(t *testing.T) {
	warmer := NewCacheWarmer(&fakeFetcher{}, nil)
	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Errorf("Warm() with no names error = %v, want nil", err)
	}
}
