package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/baas/memory"
	"github.com/and161185/student-portal/internal/convert"
	"github.com/and161185/student-portal/internal/limiter"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/service"
	"github.com/and161185/student-portal/internal/tracking"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type countingLimiter struct {
	mu    sync.Mutex
	fails int
	max   int
}

var _ limiter.Limiter = (*countingLimiter)(nil)

func (l *countingLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fails < l.max, 0, nil
}

func (l *countingLimiter) Success(context.Context, string, []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails = 0
	return nil
}

func (l *countingLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails++
	return l.fails >= l.max, time.Minute, nil
}

type harness struct {
	b   *memory.Backend
	reg *Registry
	srv *httptest.Server
}

func newHarness(t *testing.T, lim limiter.Limiter) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	b := memory.New(memory.WithBaseURL("https://p.test"))
	reg := NewRegistry(Backend{
		Store:       b.Store(),
		Blobs:       b,
		NewProvider: func() auth.Provider { return b.NewAuthClient() },
	}, time.Hour, log)
	s, err := New(Config{SessionKey: testKey, MaxAge: time.Hour}, reg, service.NewDataService(b.Store(), b, nil, log), lim, log)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
	})
	return &harness{b: b, reg: reg, srv: srv}
}

// browser is an HTTP client with its own cookie jar.
type browser struct {
	t    *testing.T
	base string
	c    *http.Client
}

func (h *harness) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: h.srv.URL, c: &http.Client{Jar: jar}}
}

func (b *browser) do(req *http.Request, out any) int {
	b.t.Helper()
	resp, err := b.c.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(b.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (b *browser) get(path string, out any) int {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req, out)
}

func (b *browser) post(path string, body any, out any) int {
	b.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(b.t, err)
	req, err := http.NewRequest(http.MethodPost, b.base+path, bytes.NewReader(raw))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *browser) captcha() string {
	b.t.Helper()
	var out map[string]string
	require.Equal(b.t, http.StatusOK, b.get("/api/captcha", &out))
	require.Len(b.t, out["captcha"], 6)
	return out["captcha"]
}

func (b *browser) signup(name, email, pw string) int {
	b.t.Helper()
	return b.post("/api/auth/signup", map[string]string{
		"name": name, "email": email, "password": pw, "confirm_password": pw, "captcha": b.captcha(),
	}, nil)
}

func (b *browser) login(email, pw string) int {
	b.t.Helper()
	return b.post("/api/auth/login", map[string]string{"email": email, "password": pw, "captcha": b.captcha()}, nil)
}

func (b *browser) submit(fields map[string]string, fileName string, data []byte, out any) int {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(b.t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(b.t, err)
		_, err = fw.Write(data)
		require.NoError(b.t, err)
	}
	require.NoError(b.t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, b.base+"/api/requests", &buf)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req, out)
}

func TestPublicRoutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.b.SeedNews(
		model.NewsItem{Title: "old", IsActive: true, CreatedAt: time.Now().Add(-time.Hour)},
		model.NewsItem{Title: "hidden", IsActive: false},
		model.NewsItem{Title: "new", IsActive: true, CreatedAt: time.Now()},
	)
	br := h.browser(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, br.get("/healthz", &health))
	require.Equal(t, "ok", health["status"])

	var svcs []map[string]any
	require.Equal(t, http.StatusOK, br.get("/api/services", &svcs))
	require.Len(t, svcs, 5)

	var news []convert.News
	require.Equal(t, http.StatusOK, br.get("/api/news", &news))
	require.Len(t, news, 2)
	require.Equal(t, "new", news[0].Title)

	require.Equal(t, http.StatusBadRequest, br.get("/api/track?number=nope", nil))
	require.Equal(t, http.StatusNotFound, br.get("/api/track?number=REQ-2024-0001", nil))

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "portal_http_requests_total")
}

func TestProtectedRoutes_RequireLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	br := h.browser(t)

	require.Equal(t, http.StatusUnauthorized, br.get("/api/me", nil))
	require.Equal(t, http.StatusUnauthorized, br.get("/api/requests", nil))
	require.Equal(t, 1, h.reg.Len())
}

func TestSignupSubmitTrackLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	br := h.browser(t)

	require.Equal(t, http.StatusCreated, br.signup("Ali & Sons", "ali@x.com", "pw123456"))

	var me convert.User
	require.Equal(t, http.StatusOK, br.get("/api/me", &me))
	require.Equal(t, "ali@x.com", me.Email)
	require.Equal(t, "Ali & Sons", me.FullNameEn)
	require.Equal(t, "student", me.Role)

	var created createRequestResponse
	code := br.submit(map[string]string{
		"service":          "visa-request",
		"university_name":  "Sana'a <b>University</b>",
		"major":            "Medicine & Surgery",
		"additional_notes": "<script>alert(1)</script>urgent",
	}, "visa.pdf", []byte("%PDF-1.4"), &created)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "submitted", created.Request.Status)
	require.NotNil(t, created.Request.UniversityName)
	require.Equal(t, "Sana'a University", *created.Request.UniversityName)
	require.Equal(t, "Medicine & Surgery", *created.Request.Major)
	require.Equal(t, "urgent", *created.Request.AdditionalNotes)
	require.NotNil(t, created.Upload)
	require.Equal(t, "committed", created.Upload.Status)
	require.Equal(t, "visa_request", created.Upload.File.FileType)

	var list []convert.Request
	require.Equal(t, http.StatusOK, br.get("/api/requests", &list))
	require.Len(t, list, 1)
	require.Equal(t, created.Request.RequestNumber, list[0].RequestNumber)
	require.Equal(t, "Sana'a University", *list[0].UniversityName)

	var files []convert.File
	require.Equal(t, http.StatusOK, br.get("/api/requests/"+list[0].ID+"/files", &files))
	require.Len(t, files, 1)
	require.True(t, strings.HasPrefix(files[0].FilePath, "https://p.test/"))

	require.Equal(t, http.StatusNotFound, br.get("/api/requests/someone-else/files", nil))

	var tr tracking.Result
	anon := h.browser(t)
	require.Equal(t, http.StatusOK, anon.get("/api/track?number="+strings.ToLower(created.Request.RequestNumber), &tr))
	require.Equal(t, "submitted", string(tr.Status))
	require.Equal(t, tracking.StepCurrent, tr.Steps[0].State)

	require.Equal(t, http.StatusNoContent, br.post("/api/auth/logout", map[string]string{}, nil))
	require.Equal(t, http.StatusUnauthorized, br.get("/api/me", nil))

	require.Equal(t, http.StatusOK, br.login("ali@x.com", "pw123456"))
	require.Equal(t, http.StatusOK, br.get("/api/me", nil))
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	br := h.browser(t)
	require.Equal(t, http.StatusCreated, br.signup("Sara", "sara@x.com", "pw123456"))

	var e errorBody
	require.Equal(t, http.StatusBadRequest, br.submit(map[string]string{"service": "passport-renewal"}, "", nil, &e))
	require.Equal(t, "validation", e.Error)
	require.NotEmpty(t, e.Title)

	require.Equal(t, http.StatusBadRequest, br.submit(map[string]string{"service": "visa-request"}, "v.pdf", []byte("x"), nil))
	require.Equal(t, http.StatusBadRequest, br.submit(map[string]string{"service": "nope"}, "v.pdf", []byte("x"), nil))

	for _, name := range []string{"..", "."} {
		require.Equal(t, http.StatusBadRequest,
			br.submit(map[string]string{"service": "passport-renewal"}, name, []byte("%PDF"), nil), name)
	}
	var list []convert.Request
	require.Equal(t, http.StatusOK, br.get("/api/requests", &list))
	require.Empty(t, list)
	require.Empty(t, h.b.Files())
}

func TestSignup_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	br := h.browser(t)

	// no captcha issued
	var e errorBody
	require.Equal(t, http.StatusBadRequest, br.post("/api/auth/signup", map[string]string{
		"name": "A", "email": "a@x.com", "password": "p", "confirm_password": "p", "captcha": "ABCDEF",
	}, &e))
	require.Equal(t, "التحقق مطلوب", e.Title)

	// the challenge is consumed by a failed attempt
	c := br.captcha()
	require.Equal(t, http.StatusBadRequest, br.post("/api/auth/signup", map[string]string{
		"name": "A", "email": "a@x.com", "password": "p", "confirm_password": "q", "captcha": c,
	}, nil))
	require.Equal(t, http.StatusBadRequest, br.post("/api/auth/signup", map[string]string{
		"name": "A", "email": "a@x.com", "password": "p", "confirm_password": "p", "captcha": c,
	}, nil))

	require.Equal(t, http.StatusBadRequest, br.post("/api/auth/signup", map[string]string{"unknown": "x"}, nil))

	require.Equal(t, http.StatusCreated, br.signup("A", "a@x.com", "p"))
	other := h.browser(t)
	require.Equal(t, http.StatusConflict, other.signup("B", "a@x.com", "p"))
	require.Equal(t, 1, h.b.IdentityCount())
}

func TestLogin_RateLimited(t *testing.T) {
	t.Parallel()
	lim := &countingLimiter{max: 2}
	h := newHarness(t, lim)
	seed := h.browser(t)
	require.Equal(t, http.StatusCreated, seed.signup("Omar", "omar@x.com", "right-pw"))

	br := h.browser(t)
	require.Equal(t, http.StatusUnauthorized, br.login("omar@x.com", "wrong"))
	require.Equal(t, http.StatusTooManyRequests, br.login("omar@x.com", "wrong"))
	require.Equal(t, http.StatusTooManyRequests, br.login("omar@x.com", "right-pw"))
	require.Equal(t, http.StatusUnauthorized, br.get("/api/me", nil))
}

func TestLogin_RevokedElsewhere(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	br := h.browser(t)
	require.Equal(t, http.StatusCreated, br.signup("Mona", "mona@x.com", "pw"))

	var me convert.User
	require.Equal(t, http.StatusOK, br.get("/api/me", &me))

	h.b.Revoke(model.ID(me.ID))
	require.Equal(t, http.StatusUnauthorized, br.get("/api/me", nil))
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, nil, nil, nil, nil)
	require.Error(t, err)
}
