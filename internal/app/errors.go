package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidOrExpiredOTP  = errors.New("invalid or expired otp")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrForbidden            = errors.New("you do not have permission to perform this action")
	ErrTooManyLoginRequests = errors.New("too many login attempts")
	ErrAccountInactive      = errors.New("account is not active")
	ErrCurrencyMismatch     = errors.New("accounts must hold the same currency")
	ErrSameAccountTransfer  = errors.New("cannot transfer to the same account")
)

// LockedError is returned while a user is inside the lockout window.
type LockedError struct {
	RemainingMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minute(s)", e.RemainingMinutes)
}

// RateLimitedError carries how long a throttled caller should wait.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry after %d second(s)", ErrTooManyLoginRequests, e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrTooManyLoginRequests
}

// ValidationError collects every field problem found in one request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// fieldErrors accumulates validation messages, keeping the first per field.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(f)}
}

func validationFailed(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
