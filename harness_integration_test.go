//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chinmina/translator-bridge/internal/config"
	"github.com/chinmina/translator-bridge/internal/jwt/josetest"
	"github.com/chinmina/translator-bridge/internal/server"
	"github.com/chinmina/translator-bridge/internal/speech"
	"github.com/chinmina/translator-bridge/internal/testhelpers"
	"github.com/chinmina/translator-bridge/internal/translator"
	"github.com/stretchr/testify/require"
)

const (
	ttsPath = "/cognitiveservices/v1"
	sttPath = "/speech/recognition/conversation/cognitiveservices/v1"
)

// APITestHarness manages the complete test environment for API integration tests.
// It sets up mock auth and service endpoints, and provides the bridge server for testing.
type APITestHarness struct {
	t        *testing.T
	Server   *httptest.Server
	AuthMock *testhelpers.MockAuthServer
	APIMock  *testhelpers.MockAPIServer
	Config   config.Config
}

// APITestHarnessOption configures the API test harness.
type APITestHarnessOption func(*testing.T, *config.Config)

// WithValkeyCache configures the test harness to use a Valkey cache container.
func WithValkeyCache() APITestHarnessOption {
	return func(t *testing.T, cfg *config.Config) {
		cfg.Cache = testhelpers.RunValkeyContainer(t)
	}
}

// WithCache uses an existing cache configuration, allowing bridges to share
// a cache.
func WithCache(cacheConfig config.CacheConfig) APITestHarnessOption {
	return func(_ *testing.T, cfg *config.Config) {
		cfg.Cache = cacheConfig
	}
}

// WithSpeechDisabled removes the speech region so the speech routes are not
// registered.
func WithSpeechDisabled() APITestHarnessOption {
	return func(_ *testing.T, cfg *config.Config) {
		cfg.Speech.Region = ""
	}
}

// WithCallerAuthorization requires callers to present tokens signed by
// issuer, whose keys are configured statically.
func WithCallerAuthorization(issuer *josetest.Issuer, issuerURL string) APITestHarnessOption {
	return func(t *testing.T, cfg *config.Config) {
		cfg.Authorization = config.AuthorizationConfig{
			IssuerURL:        issuerURL,
			Audience:         "translator-bridge",
			JWKSStatic:       issuer.JWKS(t),
			ClockSkewSeconds: 5,
		}
	}
}

// WithVoices writes a voice preset file and configures the bridge to load
// it.
func WithVoices(yamlContent string) APITestHarnessOption {
	return func(t *testing.T, cfg *config.Config) {
		path := filepath.Join(t.TempDir(), "voices.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))
		cfg.Speech.VoicesFile = path
	}
}

// NewAPITestHarness creates a complete test harness with all mock servers and the API server.
// Use options to customize the configuration (e.g., WithValkeyCache).
// Cleanup is handled automatically via t.Cleanup().
func NewAPITestHarness(t *testing.T, options ...APITestHarnessOption) *APITestHarness {
	t.Helper()
	testhelpers.SetupLogger(t)
	hooks := server.ShutdownHooks{}

	t.Cleanup(func() {
		hooks.Execute(context.Background())
	})

	harness := &APITestHarness{
		t:        t,
		AuthMock: testhelpers.SetupMockAuthServer(t),
		APIMock:  testhelpers.SetupMockAPIServer(t),
	}

	// Configure and start the API server
	cfg := config.Config{
		Translator: config.TranslatorConfig{
			AuthURL:                  harness.AuthMock.URL(),
			APIURL:                   harness.APIMock.Server.URL,
			SubscriptionKey:          "test-translator-key",
			Language:                 "en",
			TokenRefreshSeconds:      480,
			TokenFetchTimeoutSeconds: 5,
		},
		Speech: config.SpeechConfig{
			AuthURL:         harness.AuthMock.URL(),
			TTSURL:          harness.APIMock.Server.URL + ttsPath,
			STTURL:          harness.APIMock.Server.URL + sttPath,
			SubscriptionKey: "test-speech-key",
			Region:          "westus",
		},
		Cache: config.CacheConfig{
			Type:    "memory", // Default to memory cache for tests
			MaxSize: 100,
		},
		Observe: config.ObserveConfig{
			Enabled: false, // Disable observability for tests
		},
		Server: config.ServerConfig{
			Port: 0, // Not used for httptest.Server
		},
	}

	// Apply options
	for _, opt := range options {
		opt(t, &cfg)
	}
	harness.Config = cfg

	handler, err := configureServerRoutes(context.Background(), cfg, &hooks)
	require.NoError(t, err)

	harness.Server = httptest.NewServer(handler)
	hooks.AddFunc("api-server", harness.Server.Close)

	return harness
}

// Client returns a TestClient configured for this harness.
func (h *APITestHarness) Client() *TestClient {
	return &TestClient{
		baseURL: h.Server.URL,
		client:  http.DefaultClient,
	}
}

// APIError represents a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       []byte
	Message    string // parsed from JSON error response if available
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// TestClient provides typed access to the bridge endpoints for testing.
type TestClient struct {
	baseURL string
	client  *http.Client
	token   string
}

// WithToken returns a copy of the client that sends token as its bearer
// credential.
func (c *TestClient) WithToken(token string) *TestClient {
	clone := *c
	clone.token = token
	return &clone
}

// Response wraps raw HTTP response for low-level assertions.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Request performs a low-level HTTP request and returns the raw response.
// This method is useful for testing error cases and edge conditions.
func (c *TestClient) Request(method, path string, body io.Reader) (*Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

// Translate posts texts to the translate endpoint.
func (c *TestClient) Translate(req TranslateRequest) ([]translator.TranslationResult, error) {
	var results []translator.TranslationResult
	err := c.postJSON("/translate", req, &results)
	return results, err
}

// Detect posts texts to the detect endpoint.
func (c *TestClient) Detect(req DetectRequest) ([]translator.DetectionResult, error) {
	var results []translator.DetectionResult
	err := c.postJSON("/detect", req, &results)
	return results, err
}

// Languages lists the supported languages named in displayLanguage.
func (c *TestClient) Languages(displayLanguage string) ([]translator.ServiceLanguage, error) {
	resp, err := c.Request("GET", "/languages?language="+displayLanguage, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var languages []translator.ServiceLanguage
	if err := json.Unmarshal(resp.Body, &languages); err != nil {
		return nil, fmt.Errorf("unmarshal languages response: %w", err)
	}

	return languages, nil
}

// Speak requests synthesised audio, returning the raw response.
func (c *TestClient) Speak(req SpeakRequest) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.Request("POST", "/speak", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	return resp, nil
}

// Recognize uploads audio for recognition.
func (c *TestClient) Recognize(audio []byte, query string) (*speech.RecognitionResult, error) {
	resp, err := c.Request("POST", "/recognize?"+query, bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result speech.RecognitionResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal recognition response: %w", err)
	}

	return &result, nil
}

func (c *TestClient) postJSON(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.Request("POST", path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}

	return nil
}

// parseError attempts to parse an error response from the API.
func (c *TestClient) parseError(resp *Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}

	// Try to parse JSON error message
	var errResp ErrorResponse
	if err := json.Unmarshal(resp.Body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
	}

	return apiErr
}
