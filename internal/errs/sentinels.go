// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across baas/repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the auth provider rejected the credentials or token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotConfigured is returned by every BaaS call when the base URL or API key is missing.
	ErrNotConfigured = errors.New("no valid backend connection")

	// ErrProfileMissing means the provider accepted the identity but no profile row matches it.
	ErrProfileMissing = errors.New("profile missing")

	// ErrClosed is returned by a session manager after Close.
	ErrClosed = errors.New("closed")

	// ErrValidation marks input rejected before any external call.
	ErrValidation = errors.New("validation")
)

// PartialWriteError reports a two-phase write whose first phase was kept
// after the second one failed. Orphan names what was left behind.
type PartialWriteError struct {
	Stage  string // failed phase, e.g. "profile" or "metadata"
	Orphan string // identity id or blob path
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %s failed, orphan %q", e.Stage, e.Orphan)
}

// Validation wraps msg as an ErrValidation error.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
