package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

func newTestAEAD(t *testing.T) tink.AEAD {
	t.Helper()

	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	require.NoError(t, err)

	primitive, err := aead.New(handle)
	require.NoError(t, err)

	return primitive
}

func TestPlainSealer(t *testing.T) {
	ctx := context.Background()
	s := PlainSealer{}

	sealed, err := s.Seal(ctx, []byte(`{"Value":"Bearer x"}`), "digest")
	require.NoError(t, err)
	assert.Equal(t, `{"Value":"Bearer x"}`, sealed)

	opened, err := s.Open(ctx, sealed, "another-digest")
	require.NoError(t, err)
	assert.Equal(t, sealed, string(opened))

	assert.Equal(t, "plain:", s.Namespace())
	assert.NoError(t, s.Close())
}

func TestTinkSealer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewTinkSealer(newTestAEAD(t))

	sealed, err := s.Seal(ctx, []byte("Bearer secret"), "digest")
	require.NoError(t, err)

	assert.True(t, len(sealed) > len(sealedPrefix))
	assert.Equal(t, sealedPrefix, sealed[:len(sealedPrefix)])
	assert.NotContains(t, sealed, "Bearer secret")

	opened, err := s.Open(ctx, sealed, "digest")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", string(opened))

	assert.Equal(t, "sealed:", s.Namespace())
}

func TestTinkSealer_OpenFailures(t *testing.T) {
	ctx := context.Background()
	s := NewTinkSealer(newTestAEAD(t))

	sealed, err := s.Seal(ctx, []byte("Bearer secret"), "digest")
	require.NoError(t, err)

	other := NewTinkSealer(newTestAEAD(t))

	tests := []struct {
		name   string
		sealer *TinkSealer
		value  string
		key    string
	}{
		{name: "plaintext entry", sealer: s, value: `{"Value":"Bearer x"}`, key: "digest"},
		{name: "invalid base64", sealer: s, value: sealedPrefix + "!!!", key: "digest"},
		{name: "moved to another key", sealer: s, value: sealed, key: "other-digest"},
		{name: "different keyset", sealer: other, value: sealed, key: "digest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened, err := tt.sealer.Open(ctx, tt.value, tt.key)
			assert.Error(t, err)
			assert.Nil(t, opened)
		})
	}
}

type closingAEAD struct {
	tink.AEAD
	closed int
	err    error
}

func (c *closingAEAD) Close() error {
	c.closed++
	return c.err
}

func TestTinkSealer_Close(t *testing.T) {
	t.Run("closes the AEAD when it can be closed", func(t *testing.T) {
		primitive := &closingAEAD{AEAD: newTestAEAD(t), err: errors.New("already closed")}

		err := NewTinkSealer(primitive).Close()

		assert.EqualError(t, err, "already closed")
		assert.Equal(t, 1, primitive.closed)
	})

	t.Run("plain AEAD", func(t *testing.T) {
		assert.NoError(t, NewTinkSealer(newTestAEAD(t)).Close())
	})
}
