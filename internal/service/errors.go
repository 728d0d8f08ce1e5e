package service

import (
	"fmt"
	"time"
)

// InvalidStateError covers expired, consumed and mismatched OAuth state
// tokens. Authorization is one-shot; the caller restarts the flow.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid oauth state: %s", e.Reason)
}

// ReauthRequiredError is terminal: the linked account's credentials are
// gone for good and the user must re-link. Never retried automatically.
type ReauthRequiredError struct {
	AccountID int64
	Provider  string
	Err       error
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("%s account %d requires re-authorization: %v", e.Provider, e.AccountID, e.Err)
}

func (e *ReauthRequiredError) Unwrap() error { return e.Err }

type AccountLimitError struct {
	Current int
	Max     int
}

func (e *AccountLimitError) Error() string {
	return fmt.Sprintf("linked account limit reached: %d of %d", e.Current, e.Max)
}

type QuotaExceededError struct {
	Current int
	Max     int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily post quota reached: %d of %d, resets at %s",
		e.Current, e.Max, e.ResetAt.Format(time.RFC3339))
}

type PlatformNotAvailableError struct {
	Provider string
	Plan     string
}

func (e *PlatformNotAvailableError) Error() string {
	return fmt.Sprintf("platform %s is not available on the %s plan", e.Provider, e.Plan)
}
