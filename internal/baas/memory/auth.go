package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/crypto"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

var _ auth.Provider = (*AuthClient)(nil)

// AuthClient is one client's view of the provider; it holds at most one session.
type AuthClient struct {
	b   *Backend
	hub auth.Hub

	mu      sync.Mutex
	session *auth.Session
}

// NewAuthClient returns a client with no session.
func (b *Backend) NewAuthClient() *AuthClient {
	c := &AuthClient{b: b}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

// Revoke ends every session of the identity, as if it signed out elsewhere.
func (b *Backend) Revoke(id model.ID) {
	b.mu.Lock()
	clients := make([]*AuthClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		hit := c.session != nil && c.session.Identity.ID == id
		if hit {
			c.session = nil
		}
		c.mu.Unlock()
		if hit {
			c.hub.Emit(auth.EventSignedOut, nil)
		}
	}
}

// SignIn checks the password and issues a session.
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	b := c.b
	b.mu.Lock()
	if err := b.enter(OpSignIn); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	id, ok := b.identities[strings.ToLower(email)]
	b.mu.Unlock()

	if !ok || !crypto.Verify(password, id.pwHash) {
		return nil, errs.ErrUnauthorized
	}
	s, err := c.issue(id)
	if err != nil {
		return nil, err
	}
	c.hub.Emit(auth.EventSignedIn, s)
	return s, nil
}

// SignUp registers an identity and, as with auto-confirmed projects, signs it in.
func (c *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]string) (auth.Identity, *auth.Session, error) {
	b := c.b
	b.mu.Lock()
	if err := b.enter(OpSignUp); err != nil {
		b.mu.Unlock()
		return auth.Identity{}, nil, err
	}
	key := strings.ToLower(email)
	if _, ok := b.identities[key]; ok {
		b.mu.Unlock()
		return auth.Identity{}, nil, errs.ErrAlreadyExists
	}
	params := b.params
	b.mu.Unlock()

	hash, err := params.Encode(password)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	id := &identity{id: newID(), email: email, pwHash: hash, metadata: md}

	b.mu.Lock()
	if _, ok := b.identities[key]; ok {
		b.mu.Unlock()
		return auth.Identity{}, nil, errs.ErrAlreadyExists
	}
	b.identities[key] = id
	b.mu.Unlock()

	s, err := c.issue(id)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	c.hub.Emit(auth.EventSignedIn, s)
	return s.Identity, s, nil
}

// SignOut drops the session. An injected fault is returned after the local state is cleared.
func (c *AuthClient) SignOut(ctx context.Context) error {
	c.b.mu.Lock()
	err := c.b.enter(OpSignOut)
	c.b.mu.Unlock()

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.hub.Emit(auth.EventSignedOut, nil)
	return err
}

// Session returns the current session; an expired one is dropped.
func (c *AuthClient) Session(ctx context.Context) (*auth.Session, error) {
	c.b.mu.Lock()
	err := c.b.enter(OpSession)
	now := c.b.now()
	c.b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	s := c.session
	expired := s != nil && s.Expired(now)
	if expired {
		c.session = nil
	}
	c.mu.Unlock()

	if expired {
		c.hub.Emit(auth.EventSignedOut, nil)
		return nil, nil
	}
	if s == nil {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// Subscribe registers fn for this client's session events.
func (c *AuthClient) Subscribe(fn auth.Listener) func() { return c.hub.Subscribe(fn) }

// Close detaches the client from the backend.
func (c *AuthClient) Close() {
	c.b.mu.Lock()
	delete(c.b.clients, c)
	c.b.mu.Unlock()
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *AuthClient) issue(id *identity) (*auth.Session, error) {
	b := c.b
	b.mu.Lock()
	now := b.now()
	ttl := b.tokenTTL
	key := b.signKey
	b.mu.Unlock()

	exp := now.Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(key)
	if err != nil {
		return nil, err
	}
	md := make(map[string]string, len(id.metadata))
	for k, v := range id.metadata {
		md[k] = v
	}
	s := &auth.Session{
		AccessToken:  signed,
		RefreshToken: newID().String(),
		ExpiresAt:    exp,
		Identity:     auth.Identity{ID: id.id, Email: id.email, Metadata: md},
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	cp := *s
	return &cp, nil
}

// VerifyToken parses an access token issued by this backend and returns its subject.
func (b *Backend) VerifyToken(token string) (model.ID, error) {
	b.mu.Lock()
	key := b.signKey
	now := b.now()
	b.mu.Unlock()

	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return "", errs.ErrUnauthorized
	}
	return model.ID(cl.Subject), nil
}
