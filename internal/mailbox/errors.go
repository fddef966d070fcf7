package mailbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned by mailbox commands issued outside
	// an authenticated session.
	ErrNotAuthenticated = errors.New("mailbox session not authenticated")

	// ErrConnectTimeout is returned when connect and login do not finish
	// within the configured connect timeout.
	ErrConnectTimeout = errors.New("mailbox connect timed out")

	// ErrFetchTimeout is returned when a fetch batch does not finish
	// within the configured fetch timeout.
	ErrFetchTimeout = errors.New("mailbox fetch timed out")
)

// AuthError indicates that the IMAP server rejected the credentials.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
