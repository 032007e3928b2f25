// Package httpserver is the backend-for-frontend of the portal web pages.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/sessions"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/limiter"
	"github.com/and161185/student-portal/internal/metrics"
	"github.com/and161185/student-portal/internal/service"
)

const (
	// CookieName is the name of the browser session cookie.
	CookieName = "portal-session"

	clientIDKey = "client_id"
	captchaKey  = "captcha"

	maxUpload = 10 << 20
)

// Config configures a Server.
type Config struct {
	// SessionKey signs the cookie; at least 32 bytes are expected.
	SessionKey []byte
	Secure     bool
	MaxAge     time.Duration
}

// Server serves the JSON API.
type Server struct {
	reg     *Registry
	data    service.DataService
	limiter limiter.Limiter
	cookies *sessions.CookieStore
	policy  *bluemonday.Policy
	log     *zap.Logger
	now     func() time.Time
}

// New builds a Server. data serves anonymous reads (news, tracking); lim may be nil.
func New(cfg Config, reg *Registry, data service.DataService, lim limiter.Limiter, log *zap.Logger) (*Server, error) {
	if len(cfg.SessionKey) == 0 {
		return nil, errors.New("httpserver: session key is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.SessionKey) < 32 {
		log.Warn("session key is short; 32+ bytes recommended", zap.Int("length", len(cfg.SessionKey)))
	}
	if lim == nil {
		lim = limiter.Nop{}
	}

	store := sessions.NewCookieStore(cfg.SessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge / time.Second),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		reg:     reg,
		data:    data,
		limiter: lim,
		cookies: store,
		policy:  bluemonday.StrictPolicy(),
		log:     log,
		now:     time.Now,
	}, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(metrics.Instrument)
	r.Use(s.logging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/services", s.handleServices)
		r.Get("/news", s.handleNews)
		r.Get("/track", s.handleTrack)

		r.Group(func(r chi.Router) {
			r.Use(s.withClient)

			r.Get("/captcha", s.handleCaptcha)
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireUser)

				r.Get("/me", s.handleMe)
				r.Get("/requests", s.handleListRequests)
				r.Post("/requests", s.handleCreateRequest)
				r.Get("/requests/{id}/files", s.handleListFiles)
			})
		})
	})
	return r
}

type ctxKey int

const (
	clientKey ctxKey = iota
	cookieKey
)

// withClient resolves the cookie's client id to a registry entry, issuing a
// new id when the cookie is missing or invalid.
func (s *Server) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A decode error yields a fresh session, which is what we want.
		sess, _ := s.cookies.Get(r, CookieName)

		id, _ := sess.Values[clientIDKey].(string)
		if id == "" {
			id = uuid.Must(uuid.NewV4()).String()
			sess.Values[clientIDKey] = id
			if err := sess.Save(r, w); err != nil {
				s.log.Error("save session cookie", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "session", "")
				return
			}
		}

		c, err := s.reg.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), clientKey, c)
		ctx = context.WithValue(ctx, cookieKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser answers 401 unless the client's manager has a bound user.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := clientFrom(r)
		if err := c.Manager.Ready(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		if !c.Manager.IsAuthenticated() {
			writeError(w, http.StatusUnauthorized, "unauthorized", msgLoginRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientFrom(r *http.Request) *Client {
	c, _ := r.Context().Value(clientKey).(*Client)
	return c
}

func cookieFrom(r *http.Request) *sessions.Session {
	s, _ := r.Context().Value(cookieKey).(*sessions.Session)
	return s
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		// no bodies, metadata only
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("dur", time.Since(start)),
			zap.String("remote", clientIP(r)),
			zap.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error("panic", zap.Any("panic", rec), zap.String("path", r.URL.Path), zap.Stack("stack"))
				writeError(w, http.StatusInternalServerError, "internal", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
