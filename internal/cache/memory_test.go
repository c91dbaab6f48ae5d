package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory[testToken](time.Minute, 10)
	require.NoError(t, err)

	_, found, err := m.Get(ctx, "digest-a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "digest-a", testToken{Value: "Bearer a"}))

	value, found, err := m.Get(ctx, "digest-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Bearer a", value.Value)

	require.NoError(t, m.Invalidate(ctx, "digest-a"))

	_, found, err = m.Get(ctx, "digest-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory[testToken](time.Minute, 10)
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "translator", testToken{Value: "Bearer t"}))
	require.NoError(t, m.Set(ctx, "speech", testToken{Value: "Bearer s"}))
	require.NoError(t, m.Invalidate(ctx, "translator"))

	value, found, err := m.Get(ctx, "speech")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Bearer s", value.Value)
}

func TestMemory_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory[testToken](50*time.Millisecond, 10)
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "digest", testToken{Value: "Bearer short-lived"}))

	assert.Eventually(t, func() bool {
		_, found, _ := m.Get(ctx, "digest")
		return !found
	}, time.Second, 10*time.Millisecond)
}

func TestMemory_Stats(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory[testToken](time.Minute, 10)
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "present", testToken{Value: "Bearer p"}))

	_, _, _ = m.Get(ctx, "present")
	_, _, _ = m.Get(ctx, "present")
	_, _, _ = m.Get(ctx, "absent")

	hits, misses := m.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestMemory_CloseDropsEntries(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory[testToken](time.Minute, 10)
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "digest", testToken{Value: "Bearer x"}))
	require.NoError(t, m.Close())

	_, found, err := m.Get(ctx, "digest")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewMemory_InvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		maxSize int
	}{
		{name: "zero ttl", ttl: 0, maxSize: 10},
		{name: "negative ttl", ttl: -time.Second, maxSize: 10},
		{name: "zero size", ttl: time.Minute, maxSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMemory[testToken](tt.ttl, tt.maxSize)
			assert.Error(t, err)
			assert.Nil(t, m)
		})
	}
}
