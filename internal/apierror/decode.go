package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

type errorEnvelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Decode builds a ServiceError from a non-success response body of the form
// {"error":{"code":int,"message":string}}. When the body does not match that
// shape, the result has code 500 and the fallback message, and the decode
// failure is returned alongside so the caller can log it.
func Decode(httpStatus int, body []byte, fallback string) (*ServiceError, error) {
	var env errorEnvelope
	err := json.Unmarshal(body, &env)
	if err == nil && env.Error == nil {
		err = errors.New("error object missing from response body")
	}
	if err != nil {
		return &ServiceError{
			Code:       http.StatusInternalServerError,
			Message:    fallback,
			HTTPStatus: httpStatus,
		}, err
	}

	return &ServiceError{
		Code:       env.Error.Code,
		Message:    env.Error.Message,
		HTTPStatus: httpStatus,
	}, nil
}
