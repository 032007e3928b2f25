// Package session binds an auth provider session to a portal profile.
//
// A Manager is owned by one client (a terminal, a browser cookie). Explicit
// calls and provider events run one at a time on the manager's queue, so the
// bound user is always the result of the last completed operation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/metrics"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/notify"
	"github.com/and161185/student-portal/internal/service"
)

// State of a Manager.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// ErrSignupFailed is returned when the account could not be created.
var ErrSignupFailed = errors.New("sign-up failed")

const (
	eventTimeout  = 30 * time.Second
	notifyTimeout = 10 * time.Second
)

// Deps are the collaborators of a Manager. Notifier and Log are optional.
type Deps struct {
	Auth     auth.Provider
	Data     service.DataService
	Notifier notify.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

type op struct {
	name string
	ctx  context.Context
	fn   func(ctx context.Context) error
	res  chan error // nil for fire-and-forget ops
}

// Manager holds the current user of one client.
type Manager struct {
	auth     auth.Provider
	data     service.DataService
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time

	ops     chan op
	done    chan struct{}
	stopped chan struct{}

	// provider events, run in arrival order ahead of the next op
	evMu    sync.Mutex
	pending []op
	wake    chan struct{}

	mu   sync.RWMutex
	user *model.User

	lifeMu  sync.Mutex
	started bool
	closed  bool
	unsub   func()

	notifying sync.WaitGroup
}

// New returns an Anonymous manager. Call Start before use.
func New(d Deps) *Manager {
	m := &Manager{
		auth:     d.Auth,
		data:     d.Data,
		notifier: d.Notifier,
		log:      d.Log,
		now:      d.Now,
		ops:      make(chan op),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Start subscribes to provider events, starts the queue and schedules
// restoration of an existing provider session. It does not wait for it.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed {
		return errs.ErrClosed
	}
	if m.started {
		return nil
	}
	m.started = true
	go m.run()
	m.unsub = m.auth.Subscribe(m.onEvent)
	m.enqueue(op{name: "restore", ctx: context.WithoutCancel(ctx), fn: m.restore})
	return nil
}

// Close releases the subscription and stops the queue. In-flight
// notifications are awaited.
func (m *Manager) Close() {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return
	}
	m.closed = true
	started := m.started
	if m.unsub != nil {
		m.unsub()
	}
	close(m.done)
	m.lifeMu.Unlock()

	if started {
		<-m.stopped
	}
	m.notifying.Wait()
}

// State reports whether a user is bound.
func (m *Manager) State() State {
	if m.IsAuthenticated() {
		return Authenticated
	}
	return Anonymous
}

// IsAuthenticated reports whether a user is bound.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// User returns a copy of the bound user.
func (m *Manager) User() (model.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return model.User{}, false
	}
	return *m.user, true
}

// Ready waits until every operation queued before the call has run,
// provider events included.
func (m *Manager) Ready(ctx context.Context) error {
	return m.submit(ctx, "ready", func(context.Context) error { return nil })
}

// Login signs in and binds the matching profile.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.submit(ctx, "login", func(ctx context.Context) error {
		return m.login(ctx, email, password)
	})
}

// Signup creates an account for name/email/password and binds it.
func (m *Manager) Signup(ctx context.Context, name, email, password string) error {
	return m.submit(ctx, "signup", func(ctx context.Context) error {
		return m.signup(ctx, name, email, password)
	})
}

// Logout ends the session. Provider errors are logged; the manager is
// Anonymous afterwards in every case.
func (m *Manager) Logout(ctx context.Context) error {
	return m.submit(ctx, "logout", m.logout)
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
			m.drainEvents()
		case o := <-m.ops:
			m.drainEvents()
			m.exec(o)
		}
	}
}

// drainEvents runs every provider event delivered so far, including those
// emitted while draining.
func (m *Manager) drainEvents() {
	for {
		m.evMu.Lock()
		batch := m.pending
		m.pending = nil
		m.evMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, o := range batch {
			m.exec(o)
		}
	}
}

func (m *Manager) exec(o op) {
	err := o.ctx.Err()
	if err == nil {
		err = o.fn(o.ctx)
	}
	m.log.Debug("session op", zap.String("op", o.name), zap.Error(err))
	if o.res != nil {
		o.res <- err
	}
}

// submit queues fn and waits for its result.
func (m *Manager) submit(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := m.usable(); err != nil {
		return err
	}
	o := op{name: name, ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case m.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return errs.ErrClosed
	}
	select {
	case err := <-o.res:
		return err
	case <-m.stopped:
		return errs.ErrClosed
	}
}

// enqueue queues o without waiting for it.
func (m *Manager) enqueue(o op) {
	select {
	case m.ops <- o:
	case <-m.done:
	}
}

func (m *Manager) usable() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed {
		return errs.ErrClosed
	}
	if !m.started {
		return errors.New("session: manager not started")
	}
	return nil
}

// onEvent runs on the provider's goroutine, possibly inside one of our own
// queued calls, so it only records the event. Any op submitted after the
// provider emitted runs after it.
func (m *Manager) onEvent(ev auth.Event, s *auth.Session) {
	var fn func(context.Context) error
	switch ev {
	case auth.EventSignedIn:
		if s == nil {
			return
		}
		snap := *s
		fn = func(ctx context.Context) error { return m.onSignedIn(ctx, &snap) }
	case auth.EventSignedOut:
		fn = m.onSignedOut
	default:
		return
	}
	timed := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, eventTimeout)
		defer cancel()
		return fn(ctx)
	}
	m.evMu.Lock()
	m.pending = append(m.pending, op{name: "event:" + string(ev), ctx: context.Background(), fn: timed})
	m.evMu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) restore(ctx context.Context) error {
	s, err := m.auth.Session(ctx)
	if err != nil {
		m.log.Warn("session restore failed", zap.Error(err))
		return nil
	}
	if s == nil {
		return nil
	}
	if u := m.data.GetUserByEmail(ctx, s.Identity.Email); u != nil {
		m.bind(u)
		m.log.Info("session restored", zap.String("email", u.Email))
	}
	return nil
}

func (m *Manager) login(ctx context.Context, email, password string) (err error) {
	defer func() { metrics.SessionOp("login", err) }()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errs.Validation("email and password are required")
	}
	s, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		m.log.Info("login rejected", zap.String("email", email), zap.Error(err))
		return err
	}
	lookup := s.Identity.Email
	if lookup == "" {
		lookup = email
	}
	u := m.data.GetUserByEmail(ctx, lookup)
	if u == nil {
		m.log.Warn("signed in without profile", zap.String("email", lookup))
		if serr := m.auth.SignOut(ctx); serr != nil {
			m.log.Warn("sign-out after missing profile failed", zap.Error(serr))
		}
		m.bind(nil)
		return errs.ErrProfileMissing
	}
	m.bind(u)
	m.notify(notify.KindLogin, *u)
	return nil
}

func (m *Manager) signup(ctx context.Context, name, email, password string) (err error) {
	defer func() { metrics.SessionOp("signup", err) }()

	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return errs.Validation("name, email and password are required")
	}
	if m.data.GetUserByEmail(ctx, email) != nil {
		return errs.ErrAlreadyExists
	}
	res := m.data.CreateUser(ctx, model.NewUser{
		FullNameAr: name,
		FullNameEn: name,
		Email:      email,
		Password:   password,
		Role:       model.RoleStudent,
	})
	switch res.Status {
	case model.WriteCommitted:
		m.bind(res.User)
		m.notify(notify.KindSignup, *res.User)
		return nil
	case model.WritePartial:
		return &errs.PartialWriteError{Stage: "profile", Orphan: res.Orphan}
	default:
		return ErrSignupFailed
	}
}

func (m *Manager) logout(ctx context.Context) error {
	if u, ok := m.User(); ok {
		m.notify(notify.KindLogout, u)
	}
	err := m.auth.SignOut(ctx)
	if err != nil {
		m.log.Warn("provider sign-out failed", zap.Error(err))
	}
	m.bind(nil)
	metrics.SessionOp("logout", err)
	return nil
}

// onSignedIn binds the event's identity if it is still the provider's current session.
func (m *Manager) onSignedIn(ctx context.Context, s *auth.Session) error {
	cur, err := m.auth.Session(ctx)
	if err != nil || cur == nil || cur.AccessToken != s.AccessToken {
		return nil
	}
	if u, ok := m.User(); ok && strings.EqualFold(u.Email, s.Identity.Email) {
		return nil
	}
	if u := m.data.GetUserByEmail(ctx, s.Identity.Email); u != nil {
		m.bind(u)
		m.log.Info("bound from provider event", zap.String("email", u.Email))
	}
	return nil
}

// onSignedOut clears the binding unless a newer session has been established since.
func (m *Manager) onSignedOut(ctx context.Context) error {
	cur, err := m.auth.Session(ctx)
	if err == nil && cur != nil {
		return nil
	}
	if m.IsAuthenticated() {
		m.log.Info("signed out by provider")
	}
	m.bind(nil)
	return nil
}

func (m *Manager) bind(u *model.User) {
	var cp *model.User
	if u != nil {
		c := *u
		c.PasswordHash = ""
		cp = &c
	}
	m.mu.Lock()
	m.user = cp
	m.mu.Unlock()
}

// notify delivers in the background; failures are logged only.
func (m *Manager) notify(kind notify.Kind, u model.User) {
	if m.notifier == nil {
		return
	}
	msg := notify.Compose(kind, u, m.now())
	m.notifying.Add(1)
	go func() {
		defer m.notifying.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("notifier panic", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		err := m.notifier.Notify(ctx, msg)
		metrics.Notification(string(kind), err)
		if err != nil {
			m.log.Warn("notification failed", zap.String("kind", string(kind)), zap.String("to", msg.To), zap.Error(err))
		}
	}()
}
