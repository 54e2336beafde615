package client

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated rejects operations that need a session token before
// authentication succeeded.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is a failed or malformed authentication exchange. The profile is
// reset to its defaults before this error is returned.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// PayoutError is a locally rejected FTN withdrawal, raised before any network
// traffic happens.
type PayoutError struct {
	Reason string
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("payout rejected: %s", e.Reason)
}
