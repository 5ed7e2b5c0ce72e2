package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrNotFound              = errors.New("account not found")
	ErrTooManyAttempts       = errors.New("too many attempts")
	ErrCodeExpired           = errors.New("access code expired or not requested")
	ErrInvalidCode           = errors.New("invalid access code")
	ErrAccountDisabled       = errors.New("account is disabled")
	ErrAccountLocked         = errors.New("account is locked")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// RateLimitError carries the unlock time of a limiter lockout.
type RateLimitError struct {
	RetryAfter time.Time
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter.IsZero() {
		return ErrTooManyAttempts.Error()
	}
	return fmt.Sprintf("%s, retry after %s", ErrTooManyAttempts, e.RetryAfter.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrTooManyAttempts }

// CodeMismatchError reports how many guesses remain before the account locks.
type CodeMismatchError struct {
	Remaining int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("%s, %d attempts remaining", ErrInvalidCode, e.Remaining)
}

func (e *CodeMismatchError) Unwrap() error { return ErrInvalidCode }
