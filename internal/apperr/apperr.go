// Package apperr defines the error kinds shared by the realtime engines.
// Callers classify failures with errors.Is against the sentinel values.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth covers missing, malformed and expired credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrValidation covers malformed payloads and bad targeting.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the referenced room or notification does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the resource exists but the caller is not a
	// participant or recipient. Kept distinct from ErrNotFound so "doesn't
	// exist" is never conflated with "not yours".
	ErrForbidden = errors.New("forbidden")
	// ErrPersistence covers durable-store write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrCacheUnavailable is non-fatal; callers fall back to a durable
	// recount and must never surface it to a client.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

func Authf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuth, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func Persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
