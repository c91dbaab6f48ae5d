//go:build integration

package testhelpers

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/chinmina/translator-bridge/internal/cache/encryption"
	"github.com/chinmina/translator-bridge/internal/config"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/wait"
)

const valkeyPort nat.Port = "6379/tcp"

// ValkeyOption adjusts the cache configuration returned by
// RunValkeyContainer.
type ValkeyOption func(t *testing.T, cfg *config.CacheConfig)

// WithoutEncryption stores tokens in plaintext.
func WithoutEncryption() ValkeyOption {
	return func(_ *testing.T, cfg *config.CacheConfig) {
		cfg.Encryption = config.CacheEncryptionConfig{}
	}
}

// RunValkeyContainer starts a password-protected Valkey container that lives
// until the test ends. The returned configuration points at it, with token
// encryption enabled under a freshly generated keyset unless an option says
// otherwise.
func RunValkeyContainer(t *testing.T, opts ...ValkeyOption) config.CacheConfig {
	t.Helper()
	ctx := context.Background()

	password := rand.Text()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "valkey/valkey:9-alpine",
			Env:          map[string]string{"VALKEY_EXTRA_FLAGS": "--requirepass " + password},
			ExposedPorts: []string{string(valkeyPort)},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections"),
				wait.ForListeningPort(valkeyPort),
			),
		},
		Started: true,
		Logger:  log.TestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	mapped, err := container.MappedPort(ctx, valkeyPort)
	require.NoError(t, err)

	keysetFile := filepath.Join(t.TempDir(), "keyset.json")
	_, err = encryption.WriteNewKeyset(keysetFile)
	require.NoError(t, err)

	cfg := config.CacheConfig{
		Type: "valkey",
		Valkey: config.ValkeyConfig{
			// IPv4 loopback: the mapped port may not be bound on ::1
			Address:  "127.0.0.1:" + mapped.Port(),
			Username: "default",
			Password: password,
		},
		Encryption: config.CacheEncryptionConfig{
			Enabled:    true,
			KeysetFile: keysetFile,
		},
	}

	for _, opt := range opts {
		opt(t, &cfg)
	}

	return cfg
}
