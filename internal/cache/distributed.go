package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// Distributed stores tokens in Valkey, shared between bridge replicas. Reads
// use server-assisted client-side caching, so a token is normally served
// from local memory until Valkey reports that it changed or expired.
type Distributed[T any] struct {
	client valkey.Client
	ttl    time.Duration
	sealer Sealer
}

// NewDistributed creates a Valkey-backed cache. Entries expire after ttl,
// which has a granularity of one second. A nil sealer stores values in
// plaintext.
func NewDistributed[T any](client valkey.Client, ttl time.Duration, sealer Sealer) (*Distributed[T], error) {
	if ttl < time.Second {
		return nil, fmt.Errorf("distributed cache TTL must be at least 1s, got %s", ttl)
	}
	if sealer == nil {
		sealer = PlainSealer{}
	}

	return &Distributed[T]{
		client: client,
		ttl:    ttl,
		sealer: sealer,
	}, nil
}

// Get returns the token for key. An entry that cannot be opened or decoded
// is deleted and reported as an error; the caller then fetches a new token.
func (d *Distributed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	storageKey := d.storageKey(key)

	raw, err := d.client.DoCache(ctx, d.client.B().Get().Key(storageKey).Cache(), d.ttl).ToString()
	if valkey.IsValkeyNil(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("reading %s: %w", storageKey, err)
	}

	plaintext, err := d.sealer.Open(ctx, raw, key)
	if err != nil {
		d.discard(ctx, storageKey)
		return zero, false, fmt.Errorf("unreadable entry %s: %w", storageKey, err)
	}

	var value T
	if err := json.Unmarshal(plaintext, &value); err != nil {
		d.discard(ctx, storageKey)
		return zero, false, fmt.Errorf("undecodable entry %s: %w", storageKey, err)
	}

	return value, true, nil
}

func (d *Distributed[T]) Set(ctx context.Context, key string, value T) error {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	sealed, err := d.sealer.Seal(ctx, plaintext, key)
	if err != nil {
		return err
	}

	storageKey := d.storageKey(key)
	cmd := d.client.B().Set().Key(storageKey).Value(sealed).ExSeconds(int64(d.ttl / time.Second)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("writing %s: %w", storageKey, err)
	}

	return nil
}

func (d *Distributed[T]) Invalidate(ctx context.Context, key string) error {
	storageKey := d.storageKey(key)
	if err := d.client.Do(ctx, d.client.B().Del().Key(storageKey).Build()).Error(); err != nil {
		return fmt.Errorf("deleting %s: %w", storageKey, err)
	}
	return nil
}

// Close closes the sealer and the Valkey connection.
func (d *Distributed[T]) Close() error {
	if err := d.sealer.Close(); err != nil {
		log.Warn().Err(err).Msg("closing token sealer failed")
	}
	d.client.Close()
	return nil
}

func (d *Distributed[T]) storageKey(key string) string {
	return KeyPrefix + d.sealer.Namespace() + key
}

// discard deletes a corrupt entry. Failure is logged only: the entry will
// expire regardless.
func (d *Distributed[T]) discard(ctx context.Context, storageKey string) {
	if err := d.client.Do(ctx, d.client.B().Del().Key(storageKey).Build()).Error(); err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("key", storageKey).Msg("deleting corrupt token entry failed")
	}
}
