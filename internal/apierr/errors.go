// Package apierr provides the shared error taxonomy and retry infrastructure
// for calls to the remote completion service. Backend-specific errors are
// classified into these sentinels at the client boundary.
//
// Clients wrap with fmt.Errorf("%s: %w", msg, sentinel).
// Callers check with errors.Is(err, apierr.ErrRateLimit) etc.
package apierr

import "errors"

// Sentinel errors for completion service failures.
var (
	// ErrRateLimit indicates the service rate limit was exceeded (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the account quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out or the server failed transiently.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates the credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrMalformedResponse indicates the service answered without usable content.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrConfiguration indicates a missing credential or model identifier.
	// It is fatal: no further calls are attempted once it is seen.
	ErrConfiguration = errors.New("configuration error")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// IsFatal reports whether err must abort a whole run rather than a single unit.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
