package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session manager
var (
	// PKCE errors
	ErrNoPendingChallenge = errors.New("no pending PKCE challenge - please try signing in again")
	ErrChallengeExpired   = errors.New("authentication session expired - please try again")
	ErrStateMismatch      = errors.New("callback state does not match the pending sign-in")

	// Token errors
	ErrMalformedToken = errors.New("malformed access token")
	ErrRefreshFailed  = errors.New("token refresh failed")

	// Callback errors
	ErrNoAuthorizationCode = errors.New("No authorization code received")
	ErrCallbackFailed      = errors.New("auth callback failed")

	// Interactive session errors
	ErrAuthCancelled      = errors.New("Authentication was cancelled")
	ErrAuthSessionTimeout = errors.New("authentication session timed out")

	// Storage errors
	ErrSealedRecordInvalid = errors.New("sealed record could not be opened")
	ErrInvalidKey          = errors.New("invalid store key")
)

// ProviderError is the error reported by the identity provider on the redirect
// (the `error` and `error_description` query parameters).
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
