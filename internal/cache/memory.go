package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/rs/zerolog/log"
)

// Memory holds tokens in process. Entries expire ttl after they are written,
// so a token is dropped even when nothing checks its age.
type Memory[T any] struct {
	cache   *otter.Cache[string, T]
	counter *stats.Counter
}

// NewMemory creates an in-process cache of at most maxSize entries.
func NewMemory[T any](ttl time.Duration, maxSize int) (*Memory[T], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("memory cache TTL must be positive, got %s", ttl)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("memory cache size must be positive, got %d", maxSize)
	}

	counter := stats.NewCounter()
	cache, err := otter.New(&otter.Options[string, T]{
		MaximumSize:      maxSize,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, T](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}

	return &Memory[T]{cache: cache, counter: counter}, nil
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	value, ok := m.cache.GetIfPresent(key)
	return value, ok, nil
}

func (m *Memory[T]) Set(_ context.Context, key string, value T) error {
	m.cache.Set(key, value)
	return nil
}

func (m *Memory[T]) Invalidate(_ context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Stats returns the hit and miss counts since the cache was created.
func (m *Memory[T]) Stats() (hits, misses uint64) {
	snapshot := m.counter.Snapshot()
	return snapshot.Hits, snapshot.Misses
}

// Close drops every entry.
func (m *Memory[T]) Close() error {
	hits, misses := m.Stats()
	log.Debug().
		Uint64("hits", hits).
		Uint64("misses", misses).
		Msg("memory token cache closed")

	m.cache.InvalidateAll()
	return nil
}
