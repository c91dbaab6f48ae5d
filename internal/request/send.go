package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chinmina/translator-bridge/internal/apierror"
	"github.com/rs/zerolog/log"
)

// error bodies larger than this are truncated before decoding
const maxErrorBodySize = 64 << 10

// Send executes a signed request. Network failures are returned as a
// *apierror.TransportError. A non-2xx response is consumed and returned as a
// *apierror.ServiceError; when its body is not the service error envelope,
// the raw body text becomes the message. On success the caller owns the
// response body.
func Send(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, query included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &apierror.TransportError{
			Op:  req.Method,
			URL: redactedURL(req),
			Err: err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return nil, &apierror.TransportError{
			Op:  req.Method,
			URL: redactedURL(req),
			Err: err,
		}
	}

	fallback := strings.TrimSpace(string(body))
	if fallback == "" {
		fallback = apierror.UnknownErrorMessage
	}

	serviceErr, decodeErr := apierror.Decode(resp.StatusCode, body, fallback)
	if decodeErr != nil {
		log.Ctx(req.Context()).Debug().
			Err(decodeErr).
			Int("status", resp.StatusCode).
			Str("url", redactedURL(req)).
			Msg("service error response not in the expected format")
	}

	return nil, serviceErr
}

// redactedURL drops the query, which may carry caller text.
func redactedURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}

// DecodeJSON decodes a successful response body into out and closes it. A
// body that does not decode is reported as a ServiceError with code 500.
func DecodeJSON(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		path := ""
		if resp.Request != nil {
			path = resp.Request.URL.Path
		}
		return &apierror.ServiceError{
			Code:    http.StatusInternalServerError,
			Message: "malformed response body",
			Err:     fmt.Errorf("decoding %s response: %w", path, err),
		}
	}

	return nil
}
