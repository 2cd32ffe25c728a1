package model

import (
	"errors"
	"fmt"
)

// AuthError indicates the backend rejected our credentials (HTTP 401/403).
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("model backend rejected credentials (HTTP %d)", e.Status)
}

// QuotaError indicates the backend rate-limited the call (HTTP 429).
type QuotaError struct {
	Status int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("model backend rate limited (HTTP %d)", e.Status)
}

// NetworkError wraps a transport-level failure reaching the backend.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("model backend unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// EmptyResponseError indicates the backend answered with no usable content.
type EmptyResponseError struct {
	Op string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("model backend returned empty response for %s", e.Op)
}

// retryable reports whether a call may be re-attempted. Only transient
// conditions qualify; auth failures and empty responses are final.
func retryable(err error) bool {
	var q *QuotaError
	var n *NetworkError
	return errors.As(err, &q) || errors.As(err, &n)
}
