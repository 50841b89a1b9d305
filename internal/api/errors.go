package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the access token is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredential indicates the server rejected a password hash.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoToken is returned for authenticated requests without a token.
	ErrNoToken = errors.New("no access token configured")
)

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel matching.
func (e *Error) Is(target error) bool {
	switch e.StatusCode {
	case 400:
		return target == ErrInvalidCredential
	case 401, 403:
		return target == ErrUnauthorized
	case 404:
		return target == ErrNotFound
	}
	return false
}

// NetworkError is a transport-level failure after all retries.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is, or wraps, a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
