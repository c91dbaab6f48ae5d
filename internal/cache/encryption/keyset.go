// Package encryption loads the Tink keyset used to seal tokens written to a
// shared cache, and follows rotations of the keyset file.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// Keyset is an AEAD primitive together with the ID of the key it encrypts
// with. Ciphertexts written under any other key in the set still decrypt.
type Keyset struct {
	AEAD         tink.AEAD
	PrimaryKeyID uint32
}

// NewKeyset creates the AEAD primitive for handle and checks that it can
// decrypt what it encrypts.
func NewKeyset(handle *keyset.Handle) (Keyset, error) {
	if handle == nil {
		return Keyset{}, errors.New("keyset handle is nil")
	}

	primitive, err := aead.New(handle)
	if err != nil {
		return Keyset{}, fmt.Errorf("keyset is not an AEAD keyset: %w", err)
	}

	if err := selfTest(primitive); err != nil {
		return Keyset{}, err
	}

	return Keyset{
		AEAD:         primitive,
		PrimaryKeyID: handle.KeysetInfo().GetPrimaryKeyId(),
	}, nil
}

// LoadKeyset reads a cleartext JSON keyset such as one written by
// `tinkey create-keyset --out-format json`. Mount the file from a secret
// store: its content is not protected.
func LoadKeyset(path string) (Keyset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Keyset{}, fmt.Errorf("opening keyset: %w", err)
	}
	defer func() { _ = f.Close() }()

	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return Keyset{}, fmt.Errorf("reading keyset %s: %w", path, err)
	}

	return NewKeyset(handle)
}

// WriteNewKeyset generates an AES-256-GCM keyset and writes it as cleartext
// JSON to path, returning the primary key ID. It exists for tests and local
// development.
func WriteNewKeyset(path string) (uint32, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return 0, fmt.Errorf("generating keyset: %w", err)
	}

	var buf bytes.Buffer
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(&buf)); err != nil {
		return 0, fmt.Errorf("encoding keyset: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return 0, fmt.Errorf("writing keyset: %w", err)
	}

	return handle.KeysetInfo().GetPrimaryKeyId(), nil
}

func selfTest(primitive tink.AEAD) error {
	probe := []byte("translator-bridge keyset probe")
	associated := []byte("self-test")

	ciphertext, err := primitive.Encrypt(probe, associated)
	if err != nil {
		return fmt.Errorf("keyset self-test: encrypt: %w", err)
	}

	plaintext, err := primitive.Decrypt(ciphertext, associated)
	if err != nil {
		return fmt.Errorf("keyset self-test: decrypt: %w", err)
	}

	if !bytes.Equal(probe, plaintext) {
		return errors.New("keyset self-test: decrypted value differs")
	}

	return nil
}
