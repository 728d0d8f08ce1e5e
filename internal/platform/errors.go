package platform

import (
	"errors"
	"fmt"
)

// OAuthExchangeError reports a provider rejecting an authorization code.
type OAuthExchangeError struct {
	Provider string
	Err      error
}

func (e *OAuthExchangeError) Error() string {
	return fmt.Sprintf("%s: code exchange failed: %v", e.Provider, e.Err)
}

func (e *OAuthExchangeError) Unwrap() error { return e.Err }

type ProfileFetchError struct {
	Provider string
	Err      error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("%s: profile fetch failed: %v", e.Provider, e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// RefreshUnsupportedError means the provider's tokens are long-lived and
// cannot be refreshed. Callers must demand a re-link instead of retrying.
type RefreshUnsupportedError struct {
	Provider string
}

func (e *RefreshUnsupportedError) Error() string {
	return fmt.Sprintf("%s: token refresh not supported", e.Provider)
}

// PublishError reports a failed publish attempt. Retryable distinguishes
// transient provider conditions (rate limits, 5xx) from terminal ones
// (precondition failures, bad content).
type PublishError struct {
	Provider  string
	Reason    string
	Retryable bool
	Err       error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: publish failed: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: publish failed: %s", e.Provider, e.Reason)
}

func (e *PublishError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure. Always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var ne *NetworkError
	return errors.As(err, &ne)
}

// retryableStatus classifies an HTTP status from a provider publish call.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
