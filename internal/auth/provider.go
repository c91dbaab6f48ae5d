// Package auth obtains and caches Cognitive Services access tokens.
//
// Tokens are issued by the service for 10 minutes. A Provider reuses a token
// until it reaches the refresh threshold (8 minutes by default) and then
// fetches a new one. Concurrent callers needing a token for the same
// credential share a single request to the auth endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chinmina/translator-bridge/internal/apierror"
	"github.com/chinmina/translator-bridge/internal/cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshThreshold is the token age at which a new token is fetched.
	DefaultRefreshThreshold = 8 * time.Minute

	// DefaultFetchTimeout bounds a single request to the auth endpoint.
	DefaultFetchTimeout = 10 * time.Second

	globalAuthURL   = "https://api.cognitive.microsoft.com/sts/v1.0/issueToken"
	regionalAuthURL = "https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken"

	bearerPrefix = "Bearer "

	// tokens are JWTs of around 1KB
	maxTokenSize = 64 << 10
)

// Provider is a TokenProvider that caches tokens per credential. It is safe
// for concurrent use.
type Provider struct {
	mu         sync.Mutex
	credential Credential
	// generation increments on every credential change. A fetch that started
	// under an earlier generation is not committed to the cache.
	generation uint64

	cache     cache.TokenCache[CachedToken]
	ownsCache bool
	group     singleflight.Group

	client       *http.Client
	authURL      string
	now          func() time.Time
	threshold    time.Duration
	fetchTimeout time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock replaces the time source used to age tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithHTTPClient sets the client used to call the auth endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithAuthURL overrides the auth endpoint. The region no longer affects the
// URL, but is still sent as a header.
func WithAuthURL(url string) Option {
	return func(p *Provider) {
		p.authURL = url
	}
}

// WithRefreshThreshold sets the token age at which a new token is fetched.
func WithRefreshThreshold(d time.Duration) Option {
	return func(p *Provider) {
		p.threshold = d
	}
}

// WithFetchTimeout bounds each request to the auth endpoint. The fetch is
// shared between callers, so it is not cancelled by any one caller's context.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.fetchTimeout = d
	}
}

// WithCache sets the token store. The Provider does not close a cache it did
// not create.
func WithCache(c cache.TokenCache[CachedToken]) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

// NewProvider creates a Provider for the given credential. An empty
// subscription key is accepted here; GetAccessToken reports it.
func NewProvider(credential Credential, opts ...Option) (*Provider, error) {
	p := &Provider{
		credential:   credential,
		client:       http.DefaultClient,
		now:          time.Now,
		threshold:    DefaultRefreshThreshold,
		fetchTimeout: DefaultFetchTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.threshold <= 0 {
		return nil, fmt.Errorf("refresh threshold must be positive, got %s", p.threshold)
	}

	if p.cache == nil {
		// a handful of credentials at most
		memory, err := cache.NewMemory[CachedToken](p.threshold, 16)
		if err != nil {
			return nil, fmt.Errorf("creating token cache: %w", err)
		}
		p.cache = memory
		p.ownsCache = true
	}

	initMetrics()

	return p, nil
}

// GetAccessToken returns a bearer token for the current credential, fetching
// a new one when there is no cached token younger than the refresh threshold.
func (p *Provider) GetAccessToken(ctx context.Context) (string, error) {
	credential, generation := p.current()

	if strings.TrimSpace(credential.SubscriptionKey) == "" {
		return "", &apierror.AuthError{Err: apierror.ErrMissingSubscriptionKey}
	}

	key := credential.Digest()

	if token, ok := p.lookup(ctx, key); ok {
		recordReuse(ctx)
		return token.Value, nil
	}

	flightKey := fmt.Sprintf("%s:%d", key, generation)
	results := p.group.DoChan(flightKey, func() (any, error) {
		// Detached from the first caller so its cancellation cannot fail the
		// other waiters.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()

		// a flight for this key may have completed just before this one began
		if token, ok := p.lookup(fetchCtx, key); ok {
			return token, nil
		}

		token, err := p.fetch(fetchCtx, credential)
		if err != nil {
			return nil, err
		}

		p.commit(fetchCtx, key, generation, token)

		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(CachedToken).Value, nil
	}
}

// Warm fetches a token ahead of the first call, surfacing configuration
// problems at startup.
func (p *Provider) Warm(ctx context.Context) error {
	_, err := p.GetAccessToken(ctx)
	return err
}

// SetCredential replaces the credential. Tokens cached for both the previous
// and the new credential are discarded, and any fetch in flight under the
// previous credential will not be cached.
func (p *Provider) SetCredential(ctx context.Context, credential Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous := p.credential
	p.credential = credential
	p.generation++

	var errs []error
	for _, c := range []Credential{previous, credential} {
		if c.SubscriptionKey == "" {
			continue
		}
		if err := p.cache.Invalidate(ctx, c.Digest()); err != nil {
			errs = append(errs, err)
		}
	}

	log.Ctx(ctx).Info().
		Str("subscription_key", credential.Redacted()).
		Str("region", credential.Region).
		Msg("credential replaced, cached token discarded")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalidating cached token: %w", err)
	}

	return nil
}

// Credential returns a copy of the current credential.
func (p *Provider) Credential() Credential {
	c, _ := p.current()
	return c
}

// Close releases the token cache if the Provider created it.
func (p *Provider) Close() error {
	if p.ownsCache {
		return p.cache.Close()
	}
	return nil
}

func (p *Provider) current() (Credential, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.credential, p.generation
}

func (p *Provider) lookup(ctx context.Context, key string) (CachedToken, bool) {
	token, found, err := p.cache.Get(ctx, key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("token cache lookup failed, fetching a new token")
		return CachedToken{}, false
	}
	if !found {
		return CachedToken{}, false
	}

	if token.Age(p.now()) >= p.threshold {
		return CachedToken{}, false
	}

	return token, true
}

func (p *Provider) commit(ctx context.Context, key string, generation uint64, token CachedToken) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != generation {
		log.Ctx(ctx).Debug().Msg("credential changed during token fetch, not caching result")
		return
	}

	if err := p.cache.Set(ctx, key, token); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to cache access token")
	}
}

func (p *Provider) endpoint(credential Credential) string {
	if p.authURL != "" {
		return p.authURL
	}
	if credential.Region == "" {
		return globalAuthURL
	}
	return fmt.Sprintf(regionalAuthURL, credential.Region)
}

// fetch requests a new token. Every failure is reported as a ServiceError;
// transport failures have code 500 and wrap the cause.
func (p *Provider) fetch(ctx context.Context, credential Credential) (CachedToken, error) {
	obtainedAt := p.now()
	start := time.Now()

	token, err := p.issueToken(ctx, credential)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	recordFetch(ctx, outcome, time.Since(start))

	if err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("region", credential.Region).
			Msg("access token request failed")
		return CachedToken{}, err
	}

	log.Ctx(ctx).Debug().
		Str("region", credential.Region).
		Msg("access token issued")

	return CachedToken{
		Value:      bearerPrefix + token,
		ObtainedAt: obtainedAt,
	}, nil
}

func (p *Provider) issueToken(ctx context.Context, credential Credential) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(credential), http.NoBody)
	if err != nil {
		return "", internalError(err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", credential.SubscriptionKey)
	if credential.Region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", credential.Region)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", internalError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenSize))
	if err != nil {
		return "", internalError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serviceErr, decodeErr := apierror.Decode(resp.StatusCode, body, apierror.UnknownErrorMessage)
		if decodeErr != nil {
			log.Ctx(ctx).Debug().Err(decodeErr).Int("status", resp.StatusCode).Msg("unreadable auth error response")
		}
		return "", serviceErr
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &apierror.ServiceError{
			Code:       http.StatusInternalServerError,
			Message:    "auth endpoint returned an empty token",
			HTTPStatus: resp.StatusCode,
		}
	}

	return token, nil
}

func internalError(err error) *apierror.ServiceError {
	return &apierror.ServiceError{
		Code:    http.StatusInternalServerError,
		Message: err.Error(),
		Err:     err,
	}
}
