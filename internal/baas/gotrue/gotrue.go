// Package gotrue implements auth.Provider against the Supabase Auth (GoTrue) REST API.
package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/baas"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

var _ auth.Provider = (*Client)(nil)

// refreshLeeway refreshes a session slightly before it actually expires.
const refreshLeeway = 10 * time.Second

// Client is a single-session GoTrue client.
type Client struct {
	c     *baas.Client
	store SessionStore
	hub   auth.Hub
	now   func() time.Time

	mu sync.Mutex // serializes store access and refresh
}

// New builds a client persisting its session in store (a MemoryStore when nil).
func New(c *baas.Client, store SessionStore) *Client {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Client{c: c, store: store, now: time.Now}
}

type credentials struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     map[string]string `json:"data,omitempty"`
}

type userJSON struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type tokenJSON struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         userJSON `json:"user"`
}

// SignIn exchanges email+password for a session (grant_type=password).
func (c *Client) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	var tok tokenJSON
	err := c.c.DoJSON(ctx, baas.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"password"}},
	}, credentials{Email: email, Password: password}, &tok)
	if err != nil {
		return nil, signInError(err)
	}
	s := c.sessionFrom(tok)

	c.mu.Lock()
	err = c.store.Save(s)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.hub.Emit(auth.EventSignedIn, s)
	return s, nil
}

// SignUp registers a new identity. When the project auto-confirms e-mail the
// reply carries a session, which becomes current.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (auth.Identity, *auth.Session, error) {
	body, err := json.Marshal(credentials{Email: email, Password: password, Data: metadata})
	if err != nil {
		return auth.Identity{}, nil, err
	}
	resp, err := c.c.Do(ctx, baas.Request{Method: http.MethodPost, Path: "/auth/v1/signup", Body: body})
	if err != nil {
		return auth.Identity{}, nil, err
	}

	if gjson.GetBytes(resp.Body, "access_token").Exists() {
		var tok tokenJSON
		if err := json.Unmarshal(resp.Body, &tok); err != nil {
			return auth.Identity{}, nil, err
		}
		s := c.sessionFrom(tok)
		c.mu.Lock()
		err = c.store.Save(s)
		c.mu.Unlock()
		if err != nil {
			return auth.Identity{}, nil, fmt.Errorf("save session: %w", err)
		}
		c.hub.Emit(auth.EventSignedIn, s)
		return s.Identity, s, nil
	}

	// Confirmation pending: the reply is the bare user. An existing confirmed
	// address comes back as a user with no identities.
	ids := gjson.GetBytes(resp.Body, "identities")
	if ids.Exists() && ids.IsArray() && len(ids.Array()) == 0 {
		return auth.Identity{}, nil, errs.ErrAlreadyExists
	}
	var u userJSON
	if err := json.Unmarshal(resp.Body, &u); err != nil {
		return auth.Identity{}, nil, err
	}
	if u.ID == "" {
		return auth.Identity{}, nil, errors.New("gotrue: signup reply without user id")
	}
	return identityFrom(u), nil, nil
}

// SignOut revokes the current session and clears it locally regardless of the reply.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s, _ := c.store.Load()
	clearErr := c.store.Clear()
	c.mu.Unlock()

	var err error
	if s != nil && s.AccessToken != "" {
		_, err = c.c.Do(ctx, baas.Request{Method: http.MethodPost, Path: "/auth/v1/logout", Token: s.AccessToken})
	}
	c.hub.Emit(auth.EventSignedOut, nil)
	if err != nil {
		return err
	}
	return clearErr
}

// Session returns the stored session, refreshing it when expired. A failed
// refresh drops the session and emits EventSignedOut.
func (c *Client) Session(ctx context.Context) (*auth.Session, error) {
	c.mu.Lock()
	s, err := c.store.Load()
	if err != nil || s == nil {
		c.mu.Unlock()
		return nil, err
	}
	if !s.Expired(c.now().Add(refreshLeeway)) {
		c.mu.Unlock()
		return s, nil
	}
	if s.RefreshToken == "" {
		_ = c.store.Clear()
		c.mu.Unlock()
		c.hub.Emit(auth.EventSignedOut, nil)
		return nil, nil
	}

	var tok tokenJSON
	err = c.c.DoJSON(ctx, baas.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"refresh_token"}},
	}, map[string]string{"refresh_token": s.RefreshToken}, &tok)
	if err != nil {
		if errors.Is(err, errs.ErrNotConfigured) || !isAuthRejection(err) {
			c.mu.Unlock()
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		_ = c.store.Clear()
		c.mu.Unlock()
		c.hub.Emit(auth.EventSignedOut, nil)
		return nil, nil
	}
	fresh := c.sessionFrom(tok)
	err = c.store.Save(fresh)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.hub.Emit(auth.EventTokenRefreshed, fresh)
	return fresh, nil
}

// Subscribe registers fn for session events.
func (c *Client) Subscribe(fn auth.Listener) func() { return c.hub.Subscribe(fn) }

func (c *Client) sessionFrom(tok tokenJSON) *auth.Session {
	s := &auth.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Identity:     identityFrom(tok.User),
	}
	switch {
	case tok.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tok.ExpiresAt, 0)
	case tok.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	claims := accessClaims(tok.AccessToken)
	if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	if s.Identity.ID == "" {
		s.Identity.ID = model.ID(claims.Subject)
	}
	if s.Identity.Email == "" {
		s.Identity.Email = claims.Email
	}
	return s
}

// Claims is the subset of the GoTrue access token we read.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// accessClaims decodes the token payload without verifying the signature.
func accessClaims(token string) Claims {
	var cl Claims
	if token == "" {
		return cl
	}
	_, _, _ = jwt.NewParser().ParseUnverified(token, &cl)
	return cl
}

func identityFrom(u userJSON) auth.Identity {
	id := auth.Identity{ID: model.ID(u.ID), Email: u.Email}
	if len(u.UserMetadata) > 0 {
		id.Metadata = make(map[string]string, len(u.UserMetadata))
		for k, v := range u.UserMetadata {
			if s, ok := v.(string); ok {
				id.Metadata[k] = s
			}
		}
	}
	return id
}

func isAuthRejection(err error) bool {
	var apiErr *baas.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

func signInError(err error) error {
	if isAuthRejection(err) {
		var apiErr *baas.APIError
		errors.As(err, &apiErr)
		return fmt.Errorf("%w: %s", errs.ErrUnauthorized, apiErr.Message)
	}
	return err
}
