package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Tagged error variants produced at the provider/HTTP boundary.
//
// Errors are classified once, at the point they originate, rather than
// re-inspected ad hoc by every retry predicate. Retry and engine code
// check them with errors.As / errors.Is:
//
//	var httpErr *remote.HTTPError
//	if errors.As(err, &httpErr) && httpErr.Status == 429 {
//	    // back off
//	}

// NetworkError indicates a connectivity failure (DNS, dial, reset).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError carries an upstream HTTP status code.
type HTTPError struct {
	Status int
	Msg    string
}

func (e *HTTPError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

// TimeoutError indicates an operation exceeded its deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	if e.Op == "" {
		return "operation timed out"
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

// AuthError indicates an expired or invalid credential. It is
// technically retryable but callers are expected to cap retries low and
// surface the condition so a re-authentication flow can run.
type AuthError struct {
	ProviderID string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credentials expired or unauthorized for %s", e.ProviderID)
}

// ValidationError indicates a misconfigured source (missing or deleted
// folder). It is fatal for the source's current sync cycle and never
// retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// ErrProviderNotFound is returned when looking up an unregistered source.
var ErrProviderNotFound = errors.New("provider not found")

// retryableStatuses are the upstream HTTP statuses worth retrying.
var retryableStatuses = map[int]bool{
	408: true, // request timeout
	429: true, // rate limited
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable is the default retryability classifier used by the retry
// executor when the caller supplies no predicate of its own.
//
// Retryable: network errors, retryable HTTP statuses, timeouts, expired
// credentials, and foreign errors whose message mentions a timeout.
// Everything else, including validation errors, aborts immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	// Expired credentials (tagged AuthError or upstream 401) are retried
	// so a refresh flow can run between attempts.
	if IsAuthExpired(err) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return retryableStatuses[httpErr.Status]
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return false
	}

	// Foreign error types: fall back to message sniffing for timeouts.
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// IsRateLimited reports whether the error is an upstream HTTP 429.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == 429
}

// IsServerError reports whether the error is an upstream 5xx.
func IsServerError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status >= 500 && httpErr.Status < 600
}

// IsTimeout reports whether the error is a timeout, either tagged or by
// message for foreign error types.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// IsAuthExpired reports whether the error indicates an expired or
// unauthorized credential.
func IsAuthExpired(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == 401
}

// IsNetwork reports whether the error is a tagged connectivity failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsValidation reports whether the error is a source misconfiguration.
func IsValidation(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
