package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenProvider supplies a bearer token for outbound API calls. The returned
// string includes the "Bearer " prefix and is ready for the Authorization
// header.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Credential identifies the caller's Cognitive Services subscription. An empty
// Region selects the global auth endpoint.
type Credential struct {
	SubscriptionKey string
	Region          string
}

// Digest returns a stable digest of the credential for use as a cache key, so
// the subscription key never appears in cache storage.
func (c Credential) Digest() string {
	h := sha256.New()
	h.Write([]byte(c.Region))
	h.Write([]byte{0})
	h.Write([]byte(c.SubscriptionKey))
	return hex.EncodeToString(h.Sum(nil))
}

// Redacted returns the last four characters of the subscription key, for
// logging.
func (c Credential) Redacted() string {
	if len(c.SubscriptionKey) <= 4 {
		return "****"
	}
	return "****" + c.SubscriptionKey[len(c.SubscriptionKey)-4:]
}

// CachedToken is an access token with the time it was requested.
type CachedToken struct {
	Value      string    `json:"value"`
	ObtainedAt time.Time `json:"obtainedAt"`
}

// Age returns how long ago the token was obtained.
func (t CachedToken) Age(now time.Time) time.Duration {
	return now.Sub(t.ObtainedAt)
}
