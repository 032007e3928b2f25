package httpserver

import (
	"errors"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/blob"
	"github.com/and161185/student-portal/internal/captcha"
	"github.com/and161185/student-portal/internal/catalog"
	"github.com/and161185/student-portal/internal/convert"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/forms"
	"github.com/and161185/student-portal/internal/limiter"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/service"
	"github.com/and161185/student-portal/internal/tracking"
)

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.All())
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, convert.ToNews(s.data.GetActiveNews(r.Context())))
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := tracking.Track(r.Context(), s.data, q.Get("number"), q.Get("date"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCaptcha issues a challenge and remembers it in the cookie.
func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	c, err := captcha.New()
	if err != nil {
		s.log.Error("captcha", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", msgFailed)
		return
	}
	sess := cookieFrom(r)
	sess.Values[captchaKey] = c
	if err := sess.Save(r, w); err != nil {
		s.log.Error("save session cookie", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session", msgFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"captcha": c})
}

// takeCaptcha checks answer against the stored challenge and consumes it.
func (s *Server) takeCaptcha(w http.ResponseWriter, r *http.Request, answer string) bool {
	sess := cookieFrom(r)
	challenge, _ := sess.Values[captchaKey].(string)
	if challenge == "" {
		return false
	}
	delete(sess.Values, captchaKey)
	if err := sess.Save(r, w); err != nil {
		s.log.Warn("save session cookie", zap.Error(err))
	}
	return captcha.Check(challenge, answer)
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Captcha         string `json:"captcha"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	f := forms.Signup{
		Name:            req.Name,
		Email:           strings.TrimSpace(req.Email),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		CaptchaOK:       s.takeCaptcha(w, r, req.Captcha),
	}
	if err := f.Validate(); err != nil {
		writeErr(w, err)
		return
	}

	m := clientFrom(r).Manager
	if err := m.Signup(r.Context(), f.Name, f.Email, f.Password); err != nil {
		writeErr(w, err)
		return
	}
	u, _ := m.User()
	writeJSON(w, http.StatusCreated, convert.ToUser(u))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	f := forms.Login{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		CaptchaOK: s.takeCaptcha(w, r, req.Captcha),
	}
	if err := f.Validate(); err != nil {
		writeErr(w, err)
		return
	}

	ctx := r.Context()
	m := clientFrom(r).Manager
	err := limiter.Guard(ctx, s.limiter, f.Email, clientIP(r), func() error {
		return m.Login(ctx, f.Email, f.Password)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	u, _ := m.User()
	writeJSON(w, http.StatusOK, convert.ToUser(u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := clientFrom(r).Manager.Logout(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := clientFrom(r).Manager.User()
	writeJSON(w, http.StatusOK, convert.ToUser(u))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r)
	u, _ := c.Manager.User()
	writeJSON(w, http.StatusOK, convert.ToRequests(c.Data.GetRequestsByUserID(r.Context(), u.ID)))
}

type createRequestResponse struct {
	Request convert.Request `json:"request"`
	Upload  *convert.Upload `json:"upload,omitempty"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeErr(w, errs.Validation("malformed multipart body"))
		return
	}

	att, err := attachment(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	f := forms.Request{
		Service:        r.FormValue("service"),
		UniversityName: s.clean(r.FormValue("university_name")),
		Major:          s.clean(r.FormValue("major")),
		Notes:          s.clean(r.FormValue("additional_notes")),
		SubmissionDate: strings.TrimSpace(r.FormValue("submission_date")),
		HasFile:        att != nil,
	}
	svc, err := f.Validate()
	if err != nil {
		writeErr(w, err)
		return
	}

	c := clientFrom(r)
	u, _ := c.Manager.User()
	res, err := service.Submit(r.Context(), c.Data, service.Submission{
		Request:    f.NewRequest(u.ID, svc, s.now()),
		Attachment: att,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	out := createRequestResponse{Request: convert.ToRequest(*res.Request)}
	if res.File != nil {
		up := convert.ToUpload(*res.File)
		out.Upload = &up
		if res.File.Status != model.WriteCommitted {
			s.log.Warn("attachment not stored",
				zap.String("request", res.Request.RequestNumber),
				zap.String("status", up.Status),
				zap.String("orphan", up.Orphan))
		}
	}
	writeJSON(w, http.StatusCreated, out)
}

// attachment reads the optional "file" part.
func attachment(r *http.Request) (*service.Attachment, error) {
	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Validation("unreadable file part")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errs.Validation("unreadable file part")
	}
	if len(data) == 0 {
		return nil, nil
	}
	if _, ok := blob.FileName(hdr.Filename); !ok {
		return nil, errs.Validation("file name is not usable")
	}
	return &service.Attachment{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r)
	u, _ := c.Manager.User()
	id := model.ID(chi.URLParam(r, "id"))

	owned := false
	for _, req := range c.Data.GetRequestsByUserID(r.Context(), u.ID) {
		if req.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		writeErr(w, errs.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToFiles(c.Data.GetFilesByRequestID(r.Context(), id)))
}

// clean strips markup from free text. Sanitize escapes what it keeps, and
// the rows hold plain text, so entities are decoded again.
func (s *Server) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}
