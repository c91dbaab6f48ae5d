package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/chinmina/translator-bridge/internal/cache/encryption"
	"github.com/chinmina/translator-bridge/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// defaultKeysetRefresh applies when the configured interval is not positive.
const defaultKeysetRefresh = 15 * time.Minute

// NewFromConfig creates the token cache selected by cacheConfig.Type,
// "memory" or "valkey". Entries expire after ttl; maxMemorySize bounds the
// in-memory cache only.
func NewFromConfig[T any](
	ctx context.Context,
	cacheConfig config.CacheConfig,
	ttl time.Duration,
	maxMemorySize int,
) (TokenCache[T], error) {
	switch cacheConfig.Type {
	case "valkey":
		distributed, err := newValkeyCache[T](ctx, cacheConfig, ttl)
		if err != nil {
			return nil, err
		}
		return NewInstrumented(distributed, "valkey"), nil

	case "memory":
		log.Info().
			Str("cache_type", "memory").
			Int("max_size", maxMemorySize).
			Msg("initializing in-memory token cache")

		memory, err := NewMemory[T](ttl, maxMemorySize)
		if err != nil {
			return nil, err
		}
		return NewInstrumented(memory, "memory"), nil

	default:
		return nil, fmt.Errorf("invalid cache type %q: must be either \"memory\" or \"valkey\"", cacheConfig.Type)
	}
}

func newValkeyCache[T any](ctx context.Context, cacheConfig config.CacheConfig, ttl time.Duration) (*Distributed[T], error) {
	vc := cacheConfig.Valkey

	log.Info().
		Str("cache_type", "valkey").
		Str("address", vc.Address).
		Bool("tls", vc.TLS).
		Bool("encrypted", cacheConfig.Encryption.Enabled).
		Msg("initializing distributed token cache")

	if vc.Address == "" {
		return nil, fmt.Errorf("valkey address is required when cache type is valkey")
	}

	client, err := valkey.NewClient(valkeyClientOption(vc))
	if err != nil {
		return nil, fmt.Errorf("connecting to valkey at %s: %w", vc.Address, err)
	}

	sealer, err := newSealer(ctx, cacheConfig.Encryption)
	if err != nil {
		client.Close()
		return nil, err
	}

	distributed, err := NewDistributed[T](client, ttl, sealer)
	if err != nil {
		_ = sealer.Close()
		client.Close()
		return nil, err
	}

	return distributed, nil
}

func newSealer(ctx context.Context, cfg config.CacheEncryptionConfig) (Sealer, error) {
	if !cfg.Enabled {
		return PlainSealer{}, nil
	}

	refresh := time.Duration(cfg.RefreshSeconds) * time.Second
	if refresh <= 0 {
		refresh = defaultKeysetRefresh
	}

	var (
		keys *encryption.RotatingAEAD
		err  error
	)
	if cfg.KeysetURI != "" {
		keys, err = encryption.NewRotatingKMSAEAD(ctx, cfg.KeysetURI, cfg.KMSEnvelopeKeyURI, refresh)
	} else {
		keys, err = encryption.NewRotatingAEAD(ctx, cfg.KeysetFile, refresh)
	}
	if err != nil {
		return nil, fmt.Errorf("token cache encryption: %w", err)
	}

	log.Info().
		Uint32("primary_key_id", keys.PrimaryKeyID()).
		Dur("refresh", refresh).
		Msg("token cache encryption enabled")

	return NewInstrumentedSealer(NewTinkSealer(keys)), nil
}
