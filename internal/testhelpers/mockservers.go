package testhelpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockAuthServer provides a configurable mock of the Cognitive Services
// issueToken endpoint.
type MockAuthServer struct {
	Server *httptest.Server

	// Configuration; set before the first request.
	TokenPrefix string        // issued tokens are TokenPrefix + "-" + request number
	StatusCode  int           // HTTP status code to return (200 if not set)
	ErrorBody   string        // body returned with a non-200 status
	Delay       time.Duration // delay before responding
	EmptyToken  bool          // answer 200 with no token
	// Gate, when non-nil, holds every request until it is closed.
	Gate chan struct{}

	requestCount atomic.Int32

	mu                  sync.Mutex
	lastSubscriptionKey string
	lastRegion          string
	lastMethod          string
}

// SetupMockAuthServer creates a mock auth server that issues a distinct token
// for every request.
func SetupMockAuthServer(t *testing.T) *MockAuthServer {
	t.Helper()

	mock := &MockAuthServer{
		TokenPrefix: "test-token",
		StatusCode:  http.StatusOK,
	}

	router := http.NewServeMux()

	router.HandleFunc("/sts/v1.0/issueToken", func(w http.ResponseWriter, r *http.Request) {
		n := mock.requestCount.Add(1)

		mock.mu.Lock()
		mock.lastSubscriptionKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		mock.lastRegion = r.Header.Get("Ocp-Apim-Subscription-Region")
		mock.lastMethod = r.Method
		mock.mu.Unlock()

		if mock.Gate != nil {
			select {
			case <-mock.Gate:
			case <-r.Context().Done():
				return
			}
		}

		if mock.Delay > 0 {
			time.Sleep(mock.Delay)
		}

		if mock.StatusCode != http.StatusOK {
			w.WriteHeader(mock.StatusCode)
			_, _ = io.WriteString(w, mock.ErrorBody)
			return
		}

		w.Header().Set("Content-Type", "application/jwt; charset=us-ascii")
		if mock.EmptyToken {
			return
		}
		_, _ = fmt.Fprintf(w, "%s-%d", mock.TokenPrefix, n)
	})

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)

	return mock
}

// URL returns the issueToken endpoint URL.
func (m *MockAuthServer) URL() string {
	return m.Server.URL + "/sts/v1.0/issueToken"
}

// RequestCount returns the number of token requests received.
func (m *MockAuthServer) RequestCount() int {
	return int(m.requestCount.Load())
}

// LastHeaders returns the subscription key and region headers of the most
// recent request.
func (m *MockAuthServer) LastHeaders() (subscriptionKey, region string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSubscriptionKey, m.lastRegion
}

// LastMethod returns the HTTP method of the most recent request.
func (m *MockAuthServer) LastMethod() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMethod
}

// StaticTokens is a TokenProvider returning a fixed token and counting calls.
type StaticTokens struct {
	Token string
	Err   error
	calls atomic.Int32
}

func (s *StaticTokens) GetAccessToken(_ context.Context) (string, error) {
	s.calls.Add(1)
	return s.Token, s.Err
}

// Calls returns the number of token requests made.
func (s *StaticTokens) Calls() int {
	return int(s.calls.Load())
}

// RecordedRequest is a request captured by MockAPIServer.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
	// Chunked reports whether the body was sent with chunked transfer encoding.
	Chunked bool
}

// MockAPIServer is a mock data-plane endpoint. Each path responds with a
// configured status and body, and every request is recorded.
type MockAPIServer struct {
	Server *httptest.Server

	mu        sync.Mutex
	responses map[string]mockResponse
	requests  []RecordedRequest
}

type mockResponse struct {
	status      int
	contentType string
	body        []byte
}

// SetupMockAPIServer creates a mock API server. Unconfigured paths return 404.
func SetupMockAPIServer(t *testing.T) *MockAPIServer {
	t.Helper()

	mock := &MockAPIServer{
		responses: map[string]mockResponse{},
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.Query(),
			Header:  r.Header.Clone(),
			Body:    body,
			Chunked: len(r.TransferEncoding) > 0 && r.TransferEncoding[0] == "chunked",
		})
		resp, ok := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
		}
		w.WriteHeader(resp.status)
		_, _ = w.Write(resp.body)
	}))
	t.Cleanup(mock.Server.Close)

	return mock
}

// RespondJSON configures path to return payload encoded as JSON.
func (m *MockAPIServer) RespondJSON(path string, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal JSON: %v", err))
	}
	m.Respond(path, status, "application/json; charset=utf-8", data)
}

// Respond configures path to return a raw body.
func (m *MockAPIServer) Respond(path string, status int, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = mockResponse{status: status, contentType: contentType, body: body}
}

// Requests returns the requests received so far.
func (m *MockAPIServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, failing the test if there
// has been none.
func (m *MockAPIServer) LastRequest(t *testing.T) RecordedRequest {
	t.Helper()
	reqs := m.Requests()
	if len(reqs) == 0 {
		t.Fatal("no requests received by mock API server")
	}
	return reqs[len(reqs)-1]
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
