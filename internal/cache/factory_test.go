package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chinmina/translator-bridge/internal/cache/encryption"
	"github.com/chinmina/translator-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testToken struct {
	Value string
}

func TestNewFromConfig_Memory(t *testing.T) {
	ctx := context.Background()
	cacheConfig := config.CacheConfig{Type: "memory"}

	cache, err := NewFromConfig[testToken](ctx, cacheConfig, 1*time.Minute, 100)
	require.NoError(t, err)
	require.NotNil(t, cache)

	err = cache.Set(ctx, "key", testToken{Value: "Bearer abc"})
	require.NoError(t, err)

	value, found, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Bearer abc", value.Value)

	err = cache.Close()
	assert.NoError(t, err)
}

func TestNewFromConfig_InvalidType(t *testing.T) {
	ctx := context.Background()
	cacheConfig := config.CacheConfig{Type: "redis"}

	cache, err := NewFromConfig[testToken](ctx, cacheConfig, 1*time.Minute, 100)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cache type")
	assert.Contains(t, err.Error(), "redis")
	assert.Nil(t, cache)
}

func TestNewFromConfig_ValkeyRequiresAddress(t *testing.T) {
	ctx := context.Background()
	cacheConfig := config.CacheConfig{
		Type: "valkey",
		Valkey: config.ValkeyConfig{
			Address: "", // Missing address
			TLS:     true,
		},
	}

	cache, err := NewFromConfig[testToken](ctx, cacheConfig, 1*time.Minute, 100)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "valkey address is required")
	assert.Nil(t, cache)
}

func TestNewSealer(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		sealer, err := newSealer(ctx, config.CacheEncryptionConfig{})
		require.NoError(t, err)
		assert.Equal(t, "plain:", sealer.Namespace())
	})

	t.Run("enabled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keyset.json")
		_, err := encryption.WriteNewKeyset(path)
		require.NoError(t, err)

		sealer, err := newSealer(ctx, config.CacheEncryptionConfig{Enabled: true, KeysetFile: path})
		require.NoError(t, err)
		t.Cleanup(func() { _ = sealer.Close() })

		assert.Equal(t, "sealed:", sealer.Namespace())

		sealed, err := sealer.Seal(ctx, []byte("Bearer x"), "digest")
		require.NoError(t, err)
		opened, err := sealer.Open(ctx, sealed, "digest")
		require.NoError(t, err)
		assert.Equal(t, "Bearer x", string(opened))
	})

	t.Run("missing keyset", func(t *testing.T) {
		_, err := newSealer(ctx, config.CacheEncryptionConfig{
			Enabled:    true,
			KeysetFile: filepath.Join(t.TempDir(), "absent.json"),
		})
		assert.ErrorContains(t, err, "token cache encryption")
	})
}
