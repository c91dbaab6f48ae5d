// Package request prepares and sends authenticated calls to the Cognitive
// Services data plane.
package request

import (
	"context"
	"net/http"

	"github.com/chinmina/translator-bridge/internal/auth"
	"github.com/google/uuid"
)

const (
	HeaderTraceID = "X-ClientTraceId"

	DefaultUserAgent = "translator-bridge"
)

// Signer decorates outbound requests with the current bearer token and the
// standard headers. It performs no retries.
type Signer struct {
	tokens    auth.TokenProvider
	userAgent string
	traceID   func() string
}

// NewSigner creates a Signer. An empty userAgent uses DefaultUserAgent.
func NewSigner(tokens auth.TokenProvider, userAgent string) *Signer {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Signer{
		tokens:    tokens,
		userAgent: userAgent,
		traceID:   uuid.NewString,
	}
}

// Sign sets the Authorization, User-Agent and X-ClientTraceId headers. A
// request with a body and no Content-Type is marked as JSON. Token errors are
// returned unchanged.
func (s *Signer) Sign(ctx context.Context, req *http.Request) error {
	token, err := s.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", token)
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(HeaderTraceID, s.traceID())

	if req.Body != nil && req.Body != http.NoBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	return nil
}
