// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"time"

	"github.com/and161185/student-portal/internal/errs"
)

// Limiter controls login attempts and temporary lockouts per (email, client).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Nop never blocks.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }

func (Nop) Success(context.Context, string, []byte) error { return nil }

func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}

// Guard runs login under l. Only errs.ErrUnauthorized counts as a failed
// attempt; reaching the threshold turns it into errs.ErrRateLimited.
func Guard(ctx context.Context, l Limiter, email, ip string, login func() error) error {
	email = strings.ToLower(strings.TrimSpace(email))
	ipHash := HashIP(ip)

	allowed, _, err := l.Allow(ctx, email, ipHash)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.ErrRateLimited
	}

	if err := login(); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			if blocked, _, ferr := l.Failure(ctx, email, ipHash); ferr == nil && blocked {
				return errs.ErrRateLimited
			}
		}
		return err
	}

	// best-effort reset
	_ = l.Success(ctx, email, ipHash)
	return nil
}
