package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/text/language"
)

type Config struct {
	Authorization AuthorizationConfig
	Translator    TranslatorConfig
	Speech        SpeechConfig
	Cache         CacheConfig
	Observe       ObserveConfig
	Server        ServerConfig
}

// AuthorizationConfig controls verification of callers' JWTs. Callers are
// not verified when no issuer is configured.
type AuthorizationConfig struct {
	IssuerURL string `env:"JWT_ISSUER_URL"`
	Audience  string `env:"JWT_AUDIENCE, default=translator-bridge"`

	// JWKSStatic is a JSON key set used instead of the issuer's published
	// keys. Intended for testing.
	JWKSStatic string `env:"JWT_JWKS_STATIC"`

	ClockSkewSeconds int `env:"JWT_CLOCK_SKEW_SECS, default=5"`
}

func (c AuthorizationConfig) Enabled() bool {
	return c.IssuerURL != ""
}

func (c AuthorizationConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// TranslatorConfig holds the credential and defaults for the Translator API.
type TranslatorConfig struct {
	AuthURL string // internal only
	APIURL  string // internal only

	SubscriptionKey string `env:"TRANSLATOR_SUBSCRIPTION_KEY, required"`

	// Region selects the regional auth endpoint. Empty uses the global endpoint.
	Region string `env:"TRANSLATOR_REGION"`

	// Language is used when a call does not name a target or display language.
	Language string `env:"TRANSLATOR_LANGUAGE, default=en"`

	// TokenRefreshSeconds is the maximum age of a cached access token. The
	// service issues tokens valid for 10 minutes.
	TokenRefreshSeconds int `env:"TRANSLATOR_TOKEN_REFRESH_SECS, default=480"`

	TokenFetchTimeoutSeconds int `env:"TRANSLATOR_TOKEN_FETCH_TIMEOUT_SECS, default=10"`
}

// TokenRefresh returns the refresh threshold as a duration.
func (c TranslatorConfig) TokenRefresh() time.Duration {
	return time.Duration(c.TokenRefreshSeconds) * time.Second
}

// TokenFetchTimeout returns the token fetch timeout as a duration.
func (c TranslatorConfig) TokenFetchTimeout() time.Duration {
	return time.Duration(c.TokenFetchTimeoutSeconds) * time.Second
}

// Validate checks the translator configuration.
func (c *TranslatorConfig) Validate() error {
	if c.Language != "" {
		if _, err := language.Parse(c.Language); err != nil {
			return fmt.Errorf("TRANSLATOR_LANGUAGE %q is not a valid language tag: %w", c.Language, err)
		}
	}

	// tokens are issued for 10 minutes, so a larger threshold would hand out
	// expired tokens
	if c.TokenRefreshSeconds <= 0 || c.TokenRefreshSeconds >= 600 {
		return fmt.Errorf("TRANSLATOR_TOKEN_REFRESH_SECS must be between 1 and 599, got %d", c.TokenRefreshSeconds)
	}

	if c.TokenFetchTimeoutSeconds <= 0 {
		return fmt.Errorf("TRANSLATOR_TOKEN_FETCH_TIMEOUT_SECS must be positive, got %d", c.TokenFetchTimeoutSeconds)
	}

	return nil
}

// SpeechConfig holds the speech service settings. Speech is optional: the
// routes are only registered when a region is configured.
type SpeechConfig struct {
	AuthURL string // internal only
	TTSURL  string // internal only
	STTURL  string // internal only

	// SubscriptionKey defaults to the translator key when empty, which is the
	// case for multi-service Cognitive Services resources.
	SubscriptionKey string `env:"SPEECH_SUBSCRIPTION_KEY"`
	Region          string `env:"SPEECH_REGION"`

	// VoicesFile is an optional YAML file of named voice presets.
	VoicesFile string `env:"SPEECH_VOICES_FILE"`
}

// Enabled reports whether the speech service is configured.
func (c SpeechConfig) Enabled() bool {
	return c.Region != ""
}

// CacheConfig specifies cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation: "memory" (default) or "valkey"
	Type string `env:"CACHE_TYPE, default=memory"`

	// MaxSize bounds the in-memory cache. One entry is held per credential.
	MaxSize int `env:"CACHE_MEMORY_MAX_SIZE, default=1000"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig

	// Encryption holds cache encryption settings.
	// Only supported with valkey cache type.
	Encryption CacheEncryptionConfig
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	// Username for Valkey authentication.
	Username string `env:"VALKEY_USERNAME"`

	// Password for Valkey authentication.
	Password string `env:"VALKEY_PASSWORD"`
}

// CacheEncryptionConfig holds settings for cache encryption.
type CacheEncryptionConfig struct {
	// Enabled turns on encryption for cached tokens.
	// Requires CACHE_TYPE=valkey.
	Enabled bool `env:"CACHE_ENCRYPTION_ENABLED, default=false"`

	// KeysetFile is the path to a cleartext JSON Tink keyset.
	KeysetFile string `env:"CACHE_ENCRYPTION_KEYSET_FILE"`

	// KeysetURI locates a Tink keyset in AWS Secrets Manager, encrypted under
	// KMSEnvelopeKeyURI. Takes precedence over KeysetFile.
	// Format: aws-secretsmanager://secret-name
	KeysetURI string `env:"CACHE_ENCRYPTION_KEYSET_URI"`

	// KMSEnvelopeKeyURI is the AWS KMS key that decrypts the keyset.
	// Format: aws-kms://arn:aws:kms:region:account:key/key-id
	KMSEnvelopeKeyURI string `env:"CACHE_ENCRYPTION_KMS_ENVELOPE_KEY_URI"`

	// RefreshSeconds is the keyset reload interval, allowing key rotation
	// without a restart.
	RefreshSeconds int `env:"CACHE_ENCRYPTION_REFRESH_SECS, default=900"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=translator-bridge"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Translator.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid translator configuration: %w", err)
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	if cfg.Speech.SubscriptionKey == "" {
		cfg.Speech.SubscriptionKey = cfg.Translator.SubscriptionKey
	}

	return cfg, nil
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.Type != "memory" && c.Type != "valkey" {
		return fmt.Errorf("CACHE_TYPE must be either \"memory\" or \"valkey\", got %q", c.Type)
	}

	// Encryption requires distributed cache
	if c.Encryption.Enabled && c.Type != "valkey" {
		return fmt.Errorf("cache encryption requires CACHE_TYPE=valkey")
	}

	if c.Encryption.Enabled {
		e := c.Encryption
		switch {
		case e.KeysetURI != "" && e.KMSEnvelopeKeyURI == "":
			return fmt.Errorf("CACHE_ENCRYPTION_KMS_ENVELOPE_KEY_URI required with CACHE_ENCRYPTION_KEYSET_URI")
		case e.KeysetURI != "" && !strings.HasPrefix(e.KMSEnvelopeKeyURI, "aws-kms://"):
			return fmt.Errorf("CACHE_ENCRYPTION_KMS_ENVELOPE_KEY_URI must start with aws-kms://, got %q", e.KMSEnvelopeKeyURI)
		case e.KeysetURI == "" && e.KeysetFile == "":
			return fmt.Errorf("CACHE_ENCRYPTION_KEYSET_FILE or CACHE_ENCRYPTION_KEYSET_URI required when encryption enabled")
		}
	}

	// Valkey requires address
	if c.Type == "valkey" && c.Valkey.Address == "" {
		return fmt.Errorf("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
	}

	return nil
}
