package client

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is the error carried by a ResultSessionExpired.
	ErrSessionExpired = errors.New("session expired")
	// ErrMalformedResponse is a 2xx authentication response without a token
	// or a valid user.
	ErrMalformedResponse = errors.New("malformed authentication response")
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// AuthRejectedError is a non-2xx answer from the authentication endpoint.
type AuthRejectedError struct {
	StatusCode int
	Message    string
}

func (e *AuthRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication rejected: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("authentication rejected: HTTP %d: %s", e.StatusCode, e.Message)
}

// NetworkError means no response was obtained.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsStatus returns true if err (or any wrapped error) is an HTTPError or
// AuthRejectedError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	var rejected *AuthRejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode == code
	}
	return false
}

// IsNetwork reports whether err (or any wrapped error) is a NetworkError.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
