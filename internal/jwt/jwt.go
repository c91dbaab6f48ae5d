// Package jwt verifies the bearer tokens presented by callers of the bridge.
// Tokens must be RS256-signed by the configured issuer and name the bridge's
// audience.
package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/chinmina/translator-bridge/internal/audit"
	"github.com/chinmina/translator-bridge/internal/config"
)

// jwksCacheTTL bounds how long the issuer's published keys are reused.
const jwksCacheTTL = 5 * time.Minute

type keyFunc = func(ctx context.Context) (any, error)

// Middleware returns middleware that rejects requests without a valid token
// and records the caller's identity in the audit entry.
func Middleware(cfg config.AuthorizationConfig, opts ...jwtmiddleware.Option) (func(http.Handler) http.Handler, error) {
	issuer, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing issuer URL: %w", err)
	}
	if issuer.Scheme == "" || issuer.Host == "" {
		return nil, fmt.Errorf("issuer URL %q must be absolute", cfg.IssuerURL)
	}

	if cfg.Audience == "" {
		return nil, errors.New("token audience is required")
	}

	keys, err := keySource(issuer, cfg.JWKSStatic)
	if err != nil {
		return nil, err
	}

	tokenValidator, err := validator.New(
		keys,
		validator.RS256,
		cfg.IssuerURL,
		[]string{cfg.Audience},
		validator.WithAllowedClockSkew(cfg.ClockSkew()),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring token validator: %w", err)
	}

	opts = append(opts, jwtmiddleware.WithErrorHandler(rejectCaller))
	checker := jwtmiddleware.New(tokenValidator.ValidateToken, opts...)

	return alice.New(checker.CheckJWT, recordCaller).Then, nil
}

// ClaimsFromContext returns the claims of the verified token, or nil outside
// the middleware.
func ClaimsFromContext(ctx context.Context) *validator.ValidatedClaims {
	claims, _ := ctx.Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	return claims
}

func keySource(issuer *url.URL, static string) (keyFunc, error) {
	if static == "" {
		return jwks.NewCachingProvider(issuer, jwksCacheTTL).KeyFunc, nil
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(static), &set); err != nil {
		return nil, fmt.Errorf("decoding static JWKS: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, errors.New("static JWKS contains no keys")
	}

	return func(context.Context) (any, error) { return &set, nil }, nil
}

func recordCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := audit.Log(r.Context())

		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			entry.Error = "verified claims missing from request"
			writeRejection(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}

		registered := claims.RegisteredClaims
		entry.Authorized = true
		entry.AuthSubject = registered.Subject
		entry.AuthIssuer = registered.Issuer
		entry.AuthAudience = registered.Audience
		entry.AuthExpiry = registered.Expiry

		trace.SpanFromContext(r.Context()).SetAttributes(
			attribute.String("caller.subject", registered.Subject),
		)

		next.ServeHTTP(w, r)
	})
}

// rejectCaller answers every verification failure with 401: a missing
// token, a malformed Authorization header and a token that fails validation
// are all the caller's to fix.
func rejectCaller(w http.ResponseWriter, r *http.Request, err error) {
	audit.Log(r.Context()).Error = fmt.Sprintf("caller authorization failed: %v", err)

	if !errors.Is(err, jwtmiddleware.ErrJWTMissing) && !errors.Is(err, jwtmiddleware.ErrJWTInvalid) {
		log.Info().Err(err).Msg("caller presented an unreadable authorization header")
	}

	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeRejection(w, http.StatusUnauthorized, "caller is not authorized")
}

func writeRejection(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: message})
}
