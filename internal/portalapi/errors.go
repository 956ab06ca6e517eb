package portalapi

import (
	"errors"
	"net/http"
)

// RequestError is the single failure kind of the client. Error returns the
// human-readable message of the failing operation; the status code and cause
// are kept for logging.
type RequestError struct {
	Op         string
	Message    string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a RequestError caused by a 404 response.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound
}
