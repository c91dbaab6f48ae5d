package encryption

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type keysetLoader func(ctx context.Context) (Keyset, error)

// RotatingAEAD encrypts with the keyset most recently read from a file. The
// file is read again every interval, so rotating the mounted secret takes
// effect without a restart. A failed read keeps the current keyset.
type RotatingAEAD struct {
	current atomic.Pointer[Keyset]
	load    keysetLoader

	stop     context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewRotatingAEAD reads the keyset at path and starts watching it. An
// unreadable keyset is an error; nothing is started in that case.
func NewRotatingAEAD(ctx context.Context, path string, interval time.Duration) (*RotatingAEAD, error) {
	return newRotatingAEAD(ctx, func(context.Context) (Keyset, error) {
		return LoadKeyset(path)
	}, interval)
}

func newRotatingAEAD(ctx context.Context, load keysetLoader, interval time.Duration) (*RotatingAEAD, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("keyset refresh interval must be positive, got %s", interval)
	}

	initial, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading keyset: %w", err)
	}

	// the watcher runs until Close, not until ctx is done
	watchCtx, stop := context.WithCancel(context.WithoutCancel(ctx))

	r := &RotatingAEAD{
		load:    load,
		stop:    stop,
		stopped: make(chan struct{}),
	}
	r.current.Store(&initial)

	go r.watch(watchCtx, interval)

	return r, nil
}

func (r *RotatingAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	return r.current.Load().AEAD.Encrypt(plaintext, associatedData)
}

func (r *RotatingAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	return r.current.Load().AEAD.Decrypt(ciphertext, associatedData)
}

// PrimaryKeyID is the ID of the key new values are encrypted with.
func (r *RotatingAEAD) PrimaryKeyID() uint32 {
	return r.current.Load().PrimaryKeyID
}

// Close stops watching the keyset file and waits for an in-progress read to
// finish. It may be called more than once.
func (r *RotatingAEAD) Close() error {
	r.stopOnce.Do(func() {
		r.stop()
		<-r.stopped
	})
	return nil
}

func (r *RotatingAEAD) watch(ctx context.Context, interval time.Duration) {
	defer close(r.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *RotatingAEAD) reload(ctx context.Context) {
	next, err := r.load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("keyset reload failed, keeping current keyset")
		}
		return
	}

	previous := r.current.Swap(&next)
	if previous.PrimaryKeyID != next.PrimaryKeyID {
		log.Info().
			Uint32("previous_key_id", previous.PrimaryKeyID).
			Uint32("primary_key_id", next.PrimaryKeyID).
			Msg("token cache keyset rotated")
	}
}
