// Package josetest issues signed tokens for tests and serves the matching
// OIDC discovery document and key set.
package josetest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const keyID = "test-kid"

// Issuer signs tokens with a freshly generated RSA key.
type Issuer struct {
	key    *rsa.PrivateKey
	signer jose.Signer
}

func NewIssuer(t *testing.T) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.RS256,
			Key:       jose.JSONWebKey{Key: key, KeyID: keyID, Algorithm: string(jose.RS256)},
		},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	return &Issuer{key: key, signer: signer}
}

// JWKS returns the public key set as JSON.
func (i *Issuer) JWKS(t *testing.T) string {
	t.Helper()

	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &i.key.PublicKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}

	encoded, err := json.Marshal(set)
	require.NoError(t, err)

	return string(encoded)
}

// Sign serializes claims as a compact JWS.
func (i *Issuer) Sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	token, err := jwt.Signed(i.signer).Claims(claims).Serialize()
	require.NoError(t, err)

	return token
}

// Claims returns claims valid from a minute ago until a minute from now.
func Claims(issuer, subject string, audience ...string) jwt.Claims {
	now := time.Now()
	return jwt.Claims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.Audience(audience),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		Expiry:    jwt.NewNumericDate(now.Add(time.Minute)),
	}
}

// Serve starts an OIDC provider publishing the issuer's keys. The server's
// URL is the issuer URL to configure. It is closed when the test ends.
func (i *Issuer) Serve(t *testing.T) *httptest.Server {
	t.Helper()

	jwks := i.JWKS(t)

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"issuer":   server.URL + "/",
				"jwks_uri": server.URL + "/.well-known/jwks.json",
			})
		case "/.well-known/jwks.json":
			_, _ = w.Write([]byte(jwks))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return server
}
