package encryption

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/tink-crypto/tink-go-awskms/v3/integration/awskms"
	"github.com/tink-crypto/tink-go/v2/keyset"
)

const (
	secretsManagerScheme = "aws-secretsmanager://"

	// KMSKeyScheme prefixes KMS key URIs.
	KMSKeyScheme = "aws-kms://"
)

// secretReader is the part of the Secrets Manager client used to read the
// keyset.
type secretReader interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewRotatingKMSAEAD reads a keyset held in AWS Secrets Manager and encrypted
// under an AWS KMS key. KMS is called only when the keyset is read; sealing
// and opening tokens are local. The secret is read again every interval.
//
// keysetURI has the form aws-secretsmanager://secret-name and kmsKeyURI the
// form aws-kms://arn:aws:kms:region:account:key/key-id.
func NewRotatingKMSAEAD(ctx context.Context, keysetURI, kmsKeyURI string, interval time.Duration) (*RotatingAEAD, error) {
	name, err := secretName(keysetURI)
	if err != nil {
		return nil, err
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	return newRotatingKMSAEAD(ctx, secretsmanager.NewFromConfig(cfg), name, kmsKeyURI, interval)
}

func newRotatingKMSAEAD(ctx context.Context, secrets secretReader, name, kmsKeyURI string, interval time.Duration, kmsOpts ...awskms.ClientOption) (*RotatingAEAD, error) {
	keyID, err := kmsKeyID(kmsKeyURI)
	if err != nil {
		return nil, err
	}

	envelope, err := awskms.NewAEADWithContext(ctx, keyID, kmsOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating KMS envelope AEAD: %w", err)
	}

	return newRotatingAEAD(ctx, func(ctx context.Context) (Keyset, error) {
		reader, err := readSecret(ctx, secrets, name)
		if err != nil {
			return Keyset{}, err
		}

		handle, err := keyset.ReadWithContext(ctx, reader, envelope, nil)
		if err != nil {
			return Keyset{}, fmt.Errorf("decrypting keyset %s: %w", name, err)
		}

		return NewKeyset(handle)
	}, interval)
}

// kmsKeyID strips the URI scheme: the KMS client adds its own.
func kmsKeyID(uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, KMSKeyScheme)
	if !ok || id == "" {
		return "", fmt.Errorf("KMS key URI %q must have the form %sarn:...", uri, KMSKeyScheme)
	}
	return id, nil
}

func secretName(uri string) (string, error) {
	name, ok := strings.CutPrefix(uri, secretsManagerScheme)
	if !ok {
		return "", fmt.Errorf("keyset URI %q must start with %s", uri, secretsManagerScheme)
	}
	if name == "" {
		return "", fmt.Errorf("keyset URI %q names no secret", uri)
	}
	return name, nil
}

func readSecret(ctx context.Context, secrets secretReader, name string) (*keyset.JSONReader, error) {
	out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", name)
	}

	return keyset.NewJSONReader(strings.NewReader(*out.SecretString)), nil
}
