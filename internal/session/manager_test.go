package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/student-portal/internal/baas/memory"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/notify"
	"github.com/and161185/student-portal/internal/service"
)

type recNotifier struct {
	mu  sync.Mutex
	got []notify.Message
	err error
}

func (r *recNotifier) Notify(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
	return r.err
}

func (r *recNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.got))
	for _, m := range r.got {
		out = append(out, m.Kind)
	}
	return out
}

type env struct {
	b    *memory.Backend
	prov *memory.AuthClient
	rec  *recNotifier
	m    *Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	b := memory.New()
	prov := b.NewAuthClient()
	data := service.NewDataService(b.Store(), b, prov, zaptest.NewLogger(t))
	rec := &recNotifier{}
	m := New(Deps{Auth: prov, Data: data, Notifier: rec, Log: zaptest.NewLogger(t)})
	t.Cleanup(m.Close)
	return &env{b: b, prov: prov, rec: rec, m: m}
}

func (e *env) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.m.Start(context.Background()))
	require.NoError(t, e.m.Ready(context.Background()))
}

// seed registers an account from another client, leaving e.prov signed out.
func (e *env) seed(t *testing.T, name, email, password string) model.User {
	t.Helper()
	other := e.b.NewAuthClient()
	t.Cleanup(other.Close)
	data := service.NewDataService(e.b.Store(), e.b, other, zaptest.NewLogger(t))
	res := data.CreateUser(context.Background(), model.NewUser{FullNameAr: name, FullNameEn: name, Email: email, Password: password})
	require.Equal(t, model.WriteCommitted, res.Status)
	return *res.User
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	want := e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)
	require.Equal(t, Anonymous, e.m.State())

	require.NoError(t, e.m.Login(context.Background(), "ali@x.com", "pw123"))
	u, ok := e.m.User()
	require.True(t, ok)
	require.Equal(t, "ali@x.com", u.Email)
	require.Equal(t, want.ID, u.ID)
	require.Empty(t, u.PasswordHash)
	require.Equal(t, Authenticated, e.m.State())

	e.m.Close()
	require.Equal(t, []notify.Kind{notify.KindLogin}, e.rec.kinds())
	require.Equal(t, "ali@x.com", e.rec.got[0].To)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)

	err := e.m.Login(context.Background(), "ali@x.com", "nope")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.False(t, e.m.IsAuthenticated())

	err = e.m.Login(context.Background(), "", "")
	require.ErrorIs(t, err, errs.ErrValidation)

	e.m.Close()
	require.Empty(t, e.rec.kinds())
}

func TestLogin_ProviderFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)
	e.b.FailNext(memory.OpSignIn, errs.ErrNotConfigured)

	require.ErrorIs(t, e.m.Login(context.Background(), "ali@x.com", "pw"), errs.ErrNotConfigured)
	require.Equal(t, Anonymous, e.m.State())
}

func TestLogin_ProfileMissing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	other := e.b.NewAuthClient()
	_, _, err := other.SignUp(ctx, "ghost@x.com", "pw", nil)
	require.NoError(t, err)
	e.start(t)

	require.ErrorIs(t, e.m.Login(ctx, "ghost@x.com", "pw"), errs.ErrProfileMissing)
	require.Equal(t, Anonymous, e.m.State())
	s, err := e.prov.Session(ctx)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestSignup_Success(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)

	require.NoError(t, e.m.Signup(context.Background(), "Ali", "ali@x.com", "pw123"))
	u, ok := e.m.User()
	require.True(t, ok)
	require.Equal(t, model.RoleStudent, u.Role)
	require.Equal(t, "Ali", u.FullNameAr)
	require.Equal(t, "Ali", u.FullNameEn)

	users := e.b.Users()
	require.Len(t, users, 1)
	require.Equal(t, u.ID, users[0].ID)

	e.m.Close()
	require.Equal(t, []notify.Kind{notify.KindSignup}, e.rec.kinds())
}

func TestSignup_Twice(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)
	ctx := context.Background()

	require.NoError(t, e.m.Signup(ctx, "Ali", "ali@x.com", "pw123"))
	require.ErrorIs(t, e.m.Signup(ctx, "Ali", "ali@x.com", "pw123"), errs.ErrAlreadyExists)
	require.Len(t, e.b.Users(), 1)
	require.Equal(t, 1, e.b.IdentityCount())
}

func TestSignup_Validation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)

	require.ErrorIs(t, e.m.Signup(context.Background(), " ", "ali@x.com", "pw"), errs.ErrValidation)
	require.ErrorIs(t, e.m.Signup(context.Background(), "Ali", "ali@x.com", ""), errs.ErrValidation)
	require.Zero(t, e.b.Calls(memory.OpSignUp))
}

func TestSignup_ProviderRejects(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)
	e.b.FailNext(memory.OpSignUp, errors.New("weak password"))

	require.ErrorIs(t, e.m.Signup(context.Background(), "Ali", "ali@x.com", "pw"), ErrSignupFailed)
	require.Equal(t, Anonymous, e.m.State())
	require.Empty(t, e.b.Users())
}

func TestSignup_PartialWrite(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)
	e.b.FailNext(memory.OpUserCreate, errors.New("insert failed"))

	err := e.m.Signup(context.Background(), "Ali", "ali@x.com", "pw")
	var pw *errs.PartialWriteError
	require.ErrorAs(t, err, &pw)
	require.Equal(t, "profile", pw.Stage)
	require.NotEmpty(t, pw.Orphan)
	require.Equal(t, 1, e.b.IdentityCount())
	require.Empty(t, e.b.Users())

	require.NoError(t, e.m.Ready(context.Background()))
	require.Equal(t, Anonymous, e.m.State())
}

func TestLogout_WhileAnonymous(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.start(t)

	require.NoError(t, e.m.Logout(context.Background()))
	require.Equal(t, Anonymous, e.m.State())
	require.Equal(t, 1, e.b.Calls(memory.OpSignOut))

	e.m.Close()
	require.Empty(t, e.rec.kinds())
}

func TestLogout_ProviderErrorStillSignsOut(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)
	ctx := context.Background()

	require.NoError(t, e.m.Login(ctx, "ali@x.com", "pw123"))
	e.b.FailNext(memory.OpSignOut, errors.New("network"))
	require.NoError(t, e.m.Logout(ctx))
	require.Equal(t, Anonymous, e.m.State())

	e.m.Close()
	require.Equal(t, []notify.Kind{notify.KindLogin, notify.KindLogout}, e.rec.kinds())
}

func TestStart_RestoresSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "Ali", "ali@x.com", "pw123")
	_, err := e.prov.SignIn(context.Background(), "ali@x.com", "pw123")
	require.NoError(t, err)

	e.start(t)
	u, ok := e.m.User()
	require.True(t, ok)
	require.Equal(t, "ali@x.com", u.Email)

	e.m.Close()
	require.Empty(t, e.rec.kinds())
}

func TestStart_RestoreWithoutProfileStaysAnonymous(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, _, err := e.prov.SignUp(context.Background(), "ghost@x.com", "pw", nil)
	require.NoError(t, err)

	e.start(t)
	require.Equal(t, Anonymous, e.m.State())
}

func TestProviderEvents(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	want := e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)

	ctx := context.Background()
	_, err := e.prov.SignIn(ctx, "ali@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, e.m.Ready(ctx))
	require.True(t, e.m.IsAuthenticated())

	e.b.Revoke(want.ID)
	require.NoError(t, e.m.Ready(ctx))
	require.False(t, e.m.IsAuthenticated())

	e.m.Close()
	require.Empty(t, e.rec.kinds())
}

func TestReady_WaitsForRevocation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	want := e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, e.m.Login(ctx, "ali@x.com", "pw123"))
		e.b.Revoke(want.ID)
		require.NoError(t, e.m.Ready(ctx))
		require.False(t, e.m.IsAuthenticated(), "run %d", i)
	}
}

func TestStaleSignedOutIgnoredAfterRelogin(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)
	ctx := context.Background()

	require.NoError(t, e.m.Login(ctx, "ali@x.com", "pw123"))
	require.NoError(t, e.m.Logout(ctx))
	require.NoError(t, e.m.Login(ctx, "ali@x.com", "pw123"))

	require.NoError(t, e.m.Ready(ctx))
	require.Equal(t, Authenticated, e.m.State())
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.rec.err = errors.New("smtp down")
	e.start(t)

	require.NoError(t, e.m.Signup(context.Background(), "Ali", "ali@x.com", "pw123"))
	require.True(t, e.m.IsAuthenticated())
}

func TestConcurrentCallsSerialize(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "Ali", "ali@x.com", "pw123")
	e.start(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = e.m.Login(ctx, "ali@x.com", "pw123")
				return
			}
			_ = e.m.Logout(ctx)
		}(i)
	}
	wg.Wait()
	require.NoError(t, e.m.Login(ctx, "ali@x.com", "pw123"))
	require.Equal(t, Authenticated, e.m.State())
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	require.Error(t, e.m.Login(ctx, "a", "b"))
	e.start(t)
	require.NoError(t, e.m.Start(ctx))

	e.m.Close()
	e.m.Close()
	require.ErrorIs(t, e.m.Login(ctx, "a", "b"), errs.ErrClosed)
	require.ErrorIs(t, e.m.Start(ctx), errs.ErrClosed)
}
