package encryption

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tink-crypto/tink-go-awskms/v3/integration/awskms"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/keyset"
)

const (
	testKMSKeyARN = "arn:aws:kms:us-east-1:123456789012:key/k"
	testKMSKeyURI = KMSKeyScheme + testKMSKeyARN
)

func TestSecretName(t *testing.T) {
	tests := []struct {
		uri      string
		expected string
		wantErr  string
	}{
		{uri: "aws-secretsmanager://bridge/keyset", expected: "bridge/keyset"},
		{uri: "aws-secretsmanager://arn:aws:secretsmanager:us-east-1:123:secret:k", expected: "arn:aws:secretsmanager:us-east-1:123:secret:k"},
		{uri: "aws-secretsmanager://", wantErr: "names no secret"},
		{uri: "file:///etc/keyset.json", wantErr: "must start with"},
		{uri: "", wantErr: "must start with"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			name, err := secretName(tt.uri)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

type stubSecrets struct {
	value *string
	err   error
	asked string
}

func (s *stubSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	s.asked = *in.SecretId
	if s.err != nil {
		return nil, s.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: s.value}, nil
}

func TestReadSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("string secret", func(t *testing.T) {
		value := `{"primaryKeyId":1,"key":[]}`
		secrets := &stubSecrets{value: &value}

		reader, err := readSecret(ctx, secrets, "bridge/keyset")

		require.NoError(t, err)
		assert.NotNil(t, reader)
		assert.Equal(t, "bridge/keyset", secrets.asked)
	})

	t.Run("binary secret", func(t *testing.T) {
		_, err := readSecret(ctx, &stubSecrets{}, "bridge/keyset")
		assert.ErrorContains(t, err, "no string value")
	})

	t.Run("service failure", func(t *testing.T) {
		_, err := readSecret(ctx, &stubSecrets{err: errors.New("AccessDeniedException")}, "bridge/keyset")
		assert.ErrorContains(t, err, "AccessDeniedException")
	})
}

func TestNewRotatingKMSAEAD_InvalidKeysetURI(t *testing.T) {
	_, err := NewRotatingKMSAEAD(context.Background(), "s3://bucket/keyset", "aws-kms://arn:aws:kms:us-east-1:123:key/k", 0)
	assert.ErrorContains(t, err, "must start with")
}

func TestKMSKeyID(t *testing.T) {
	id, err := kmsKeyID(testKMSKeyURI)
	require.NoError(t, err)
	assert.Equal(t, testKMSKeyARN, id)

	for _, uri := range []string{testKMSKeyARN, "aws-kms://", ""} {
		_, err := kmsKeyID(uri)
		assert.ErrorContains(t, err, "must have the form", uri)
	}
}

// fakeKMS stands in for the KMS API. Ciphertext is the plaintext behind a
// marker, and only the configured key can decrypt it.
type fakeKMS struct {
	keyID string

	mu     sync.Mutex
	keyIDs []string
}

var fakeKMSMarker = []byte("fake-kms:")

func (f *fakeKMS) record(keyID *string) (string, error) {
	id := ""
	if keyID != nil {
		id = *keyID
	}

	f.mu.Lock()
	f.keyIDs = append(f.keyIDs, id)
	f.mu.Unlock()

	if id != f.keyID {
		return "", errors.New("NotFoundException: key does not exist")
	}
	return id, nil
}

func (f *fakeKMS) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	id, err := f.record(in.KeyId)
	if err != nil {
		return nil, err
	}
	blob := append(bytes.Clone(fakeKMSMarker), in.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob, KeyId: &id}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	id, err := f.record(in.KeyId)
	if err != nil {
		return nil, err
	}
	plaintext, ok := bytes.CutPrefix(in.CiphertextBlob, fakeKMSMarker)
	if !ok {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: plaintext, KeyId: &id}, nil
}

func (f *fakeKMS) requestedKeyIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keyIDs...)
}

// encryptedKeyset writes a new keyset encrypted under the fake KMS key,
// returning its JSON and primary key ID.
func encryptedKeyset(t *testing.T, fake *fakeKMS) (string, uint32) {
	t.Helper()
	ctx := context.Background()

	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	require.NoError(t, err)

	envelope, err := awskms.NewAEADWithContext(ctx, testKMSKeyARN, awskms.WithKMS(fake))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, handle.WriteWithContext(ctx, keyset.NewJSONWriter(&buf), envelope, nil))

	return buf.String(), handle.KeysetInfo().GetPrimaryKeyId()
}

func TestNewRotatingKMSAEAD_ReadsEncryptedKeyset(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKMS{keyID: testKMSKeyARN}

	encoded, primaryID := encryptedKeyset(t, fake)
	secrets := &stubSecrets{value: &encoded}

	r, err := newRotatingKMSAEAD(ctx, secrets, "bridge/keyset", testKMSKeyURI, time.Hour, awskms.WithKMS(fake))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.Equal(t, "bridge/keyset", secrets.asked)
	assert.Equal(t, primaryID, r.PrimaryKeyID())

	ciphertext, err := r.Encrypt([]byte("Bearer token"), []byte("digest"))
	require.NoError(t, err)
	plaintext, err := r.Decrypt(ciphertext, []byte("digest"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", string(plaintext))

	// KMS is given the bare key ARN, never the URI
	ids := fake.requestedKeyIDs()
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Equal(t, testKMSKeyARN, id)
	}
}

func TestNewRotatingKMSAEAD_WrongEnvelopeKey(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKMS{keyID: testKMSKeyARN}

	encoded, _ := encryptedKeyset(t, fake)

	other := KMSKeyScheme + "arn:aws:kms:us-east-1:123456789012:key/other"
	_, err := newRotatingKMSAEAD(ctx, &stubSecrets{value: &encoded}, "bridge/keyset", other, time.Hour, awskms.WithKMS(fake))
	assert.ErrorContains(t, err, "decrypting keyset bridge/keyset")
}

func TestNewRotatingKMSAEAD_InvalidKMSKeyURI(t *testing.T) {
	value := "{}"
	_, err := newRotatingKMSAEAD(context.Background(), &stubSecrets{value: &value}, "bridge/keyset", testKMSKeyARN, time.Hour)
	assert.ErrorContains(t, err, "must have the form")
}
