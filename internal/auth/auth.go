// Package auth describes the authentication provider boundary: identities,
// sessions and the session-change event stream.
package auth

import (
	"context"
	"time"

	"github.com/and161185/student-portal/internal/model"
)

// Event is a session-change notification emitted by a provider.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Identity is the provider's own account record.
type Identity struct {
	ID       model.ID
	Email    string
	Metadata map[string]string // auxiliary sign-up data (names, role)
}

// Session is an issued provider session.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Listener receives provider events. s is nil for EventSignedOut.
type Listener func(ev Event, s *Session)

// Registrar creates provider identities.
type Registrar interface {
	// SignUp registers email+password with auxiliary metadata. The returned
	// session is nil when the provider requires confirmation before sign-in.
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (Identity, *Session, error)
}

// Provider is a client-side handle on the auth provider holding at most one session.
type Provider interface {
	Registrar
	// SignIn exchanges email+password for a session.
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut ends the current session. It clears local state even when the provider call fails.
	SignOut(ctx context.Context) error
	// Session returns the current session or nil.
	Session(ctx context.Context) (*Session, error)
	// Subscribe registers fn for session events until the returned func is called.
	Subscribe(fn Listener) (unsubscribe func())
}
