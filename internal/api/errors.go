package api

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is a transport failure: DNS, refused connection, timeout,
// reset, or a cancelled context. Always retryable.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx answer. Retryable only for status >= 500.
type HTTPError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// MalformedResponseError is a 2xx answer whose body is not valid JSON.
type MalformedResponseError struct {
	Status int
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("unexpected API response format (status %d): %v", e.Status, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// CredentialRequiredError is returned for a privileged path while no
// credential is stored. No network call has been made.
type CredentialRequiredError struct {
	Path string
}

func (e *CredentialRequiredError) Error() string {
	return fmt.Sprintf("admin credential required for %s", e.Path)
}

// CredentialInvalidError is a 401/403 answer to a privileged call.
// The stored credential has been cleared by the time the caller sees it.
type CredentialInvalidError struct {
	Path    string
	Status  int
	Message string
}

func (e *CredentialInvalidError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin credential rejected for %s (status %d)", e.Path, e.Status)
	}
	return fmt.Sprintf("admin credential rejected for %s (status %d): %s", e.Path, e.Status, e.Message)
}

// IsNetworkError checks if err is a transport failure.
func IsNetworkError(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

// IsHTTPError checks if err is a non-2xx answer.
func IsHTTPError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e)
}

// IsMalformedResponse checks if err is an unparsable 2xx body.
func IsMalformedResponse(err error) bool {
	var e *MalformedResponseError
	return errors.As(err, &e)
}

// IsCredentialRequired checks if err means a credential must be supplied first.
func IsCredentialRequired(err error) bool {
	var e *CredentialRequiredError
	return errors.As(err, &e)
}

// IsCredentialInvalid checks if err means the stored credential was rejected.
func IsCredentialInvalid(err error) bool {
	var e *CredentialInvalidError
	return errors.As(err, &e)
}

// IsNotFound checks if err is a 404 answer.
func IsNotFound(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

// IsRetryable reports whether a retry may succeed: network errors and
// HTTP errors with status >= 500. Everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}
	return false
}
