// Package apierror defines the error types returned by the translator and
// speech clients.
//
// Callers distinguish the error kinds with errors.As or the helpers in this
// package. Validation errors are always raised before any network call.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingSubscriptionKey is wrapped by AuthError when no subscription key
// has been configured.
var ErrMissingSubscriptionKey = errors.New("subscription key is not set")

// UnknownErrorMessage is used when an error response body cannot be decoded.
const UnknownErrorMessage = "Unknown error"

// ValidationError reports caller input that violates a documented limit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Status() (int, string) {
	return http.StatusBadRequest, e.Error()
}

// Validation is a shorthand constructor.
func Validation(field, reason string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// AuthError reports a missing credential detected before a network call.
// Rejection of a credential by the server is a ServiceError.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Status reports a server fault: the bridge has no usable credential.
func (e *AuthError) Status() (int, string) {
	return http.StatusInternalServerError, "service credentials are not configured"
}

// ServiceError is returned for a non-success response from the auth or API
// endpoints. Code is the service error code when the body carried one, or
// the HTTP status otherwise.
type ServiceError struct {
	Code       int
	Message    string
	HTTPStatus int

	// Err is the underlying cause for errors synthesised at the token fetch
	// boundary.
	Err error
}

func (e *ServiceError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("service error %d (HTTP %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("service error %d: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Status maps the error to a status code suitable for relaying to an HTTP
// caller. Server-side auth failures become a 502: the bridge's own
// credential was rejected, not the caller's.
func (e *ServiceError) Status() (int, string) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return http.StatusBadGateway, e.Message
	case status == http.StatusTooManyRequests:
		return status, e.Message
	case status >= 500:
		return http.StatusBadGateway, e.Message
	case status >= 400:
		return status, e.Message
	}

	return http.StatusBadGateway, e.Message
}

// Retryable reports whether a caller may reasonably retry the request. No
// retries are performed by the clients themselves.
func (e *ServiceError) Retryable() bool {
	switch e.HTTPStatus {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case 0:
		// synthesised from a transport failure during token fetch
		return e.Err != nil
	}
	return false
}

// TransportError reports a network failure calling an API endpoint.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Status() (int, string) {
	return http.StatusBadGateway, "upstream service unavailable"
}

// AsServiceError returns the ServiceError in err's chain, if any.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
