package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/and161185/student-portal/internal/captcha"
	"github.com/and161185/student-portal/internal/catalog"
	"github.com/and161185/student-portal/internal/convert"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/forms"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/service"
	"github.com/and161185/student-portal/internal/session"
	"github.com/and161185/student-portal/internal/tracking"
)

var errNotLoggedIn = errors.New("not logged in (run: portal login)")

// env is what every command runs against.
type env struct {
	m      *session.Manager
	data   service.DataService
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
	// challenge issues captcha codes; captcha.New outside tests.
	challenge func() (string, error)
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"signup":   cmdSignup,
	"login":    cmdLogin,
	"logout":   cmdLogout,
	"whoami":   cmdWhoami,
	"services": cmdServices,
	"submit":   cmdSubmit,
	"requests": cmdRequests,
	"files":    cmdFiles,
	"track":    cmdTrack,
	"news":     cmdNews,
}

// ------- helpers -------

func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	return fs
}

func (e *env) printJSON(v any) {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// askCaptcha shows a fresh code and reads the answer from stdin.
func (e *env) askCaptcha() bool {
	gen := e.challenge
	if gen == nil {
		gen = captcha.New
	}
	code, err := gen()
	if err != nil {
		return false
	}
	fmt.Fprintf(e.errOut, "اكتب رمز التحقق: %s\n> ", code)
	line, _ := e.in.ReadString('\n')
	return captcha.Check(code, strings.TrimSpace(line))
}

func (e *env) user() (model.User, error) {
	u, ok := e.m.User()
	if !ok {
		return model.User{}, errNotLoggedIn
	}
	return u, nil
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func choose(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ------- commands -------

func cmdSignup(ctx context.Context, e *env, args []string) error {
	fs := e.flags("signup")
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "e-mail")
	p := fs.String("p", "", "password")
	confirm := fs.String("confirm", "", "password again (defaults to -p)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := forms.Signup{
		Name:            *name,
		Email:           *email,
		Password:        *p,
		ConfirmPassword: choose(*confirm, *p),
	}
	f.CaptchaOK = e.askCaptcha()
	if err := f.Validate(); err != nil {
		return err
	}
	if err := e.m.Signup(ctx, f.Name, strings.TrimSpace(f.Email), f.Password); err != nil {
		return err
	}
	u, _ := e.m.User()
	e.printJSON(convert.ToUser(u))
	return nil
}

func cmdLogin(ctx context.Context, e *env, args []string) error {
	fs := e.flags("login")
	email := fs.String("email", "", "e-mail")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := forms.Login{Email: *email, Password: *p}
	f.CaptchaOK = e.askCaptcha()
	if err := f.Validate(); err != nil {
		return err
	}
	if err := e.m.Login(ctx, strings.TrimSpace(f.Email), f.Password); err != nil {
		return err
	}
	u, _ := e.m.User()
	e.printJSON(convert.ToUser(u))
	return nil
}

func cmdLogout(ctx context.Context, e *env, _ []string) error {
	if err := e.m.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "ok")
	return nil
}

func cmdWhoami(_ context.Context, e *env, _ []string) error {
	u, err := e.user()
	if err != nil {
		return err
	}
	e.printJSON(convert.ToUser(u))
	return nil
}

func cmdServices(_ context.Context, e *env, _ []string) error {
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	for _, s := range catalog.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Slug, s.Title, s.Description)
	}
	return tw.Flush()
}

type submitOutput struct {
	Request convert.Request `json:"request"`
	Upload  *convert.Upload `json:"upload,omitempty"`
}

func cmdSubmit(ctx context.Context, e *env, args []string) error {
	fs := e.flags("submit")
	svc := fs.String("service", "", "service slug (see: portal services)")
	uni := fs.String("university", "", "university name")
	major := fs.String("major", "", "major")
	notes := fs.String("notes", "", "additional notes")
	date := fs.String("date", "", "submission date YYYY-MM-DD (today when empty)")
	file := fs.String("file", "", "attachment ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := e.user()
	if err != nil {
		return err
	}

	var att *service.Attachment
	if *file != "" {
		b, err := readAll(*file)
		if err != nil {
			return err
		}
		fn := filepath.Base(*file)
		if *file == "-" {
			fn = "attachment"
		}
		att = &service.Attachment{
			Name:        fn,
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(fn))),
			Data:        b,
		}
	}

	f := forms.Request{
		Service:        *svc,
		UniversityName: *uni,
		Major:          *major,
		Notes:          *notes,
		SubmissionDate: *date,
		HasFile:        att != nil && len(att.Data) > 0,
	}
	entry, err := f.Validate()
	if err != nil {
		return err
	}
	res, err := service.Submit(ctx, e.data, service.Submission{
		Request:    f.NewRequest(u.ID, entry, e.now()),
		Attachment: att,
	})
	if err != nil {
		return err
	}
	out := submitOutput{Request: convert.ToRequest(*res.Request)}
	if res.File != nil {
		up := convert.ToUpload(*res.File)
		out.Upload = &up
	}
	e.printJSON(out)
	return nil
}

func cmdRequests(ctx context.Context, e *env, _ []string) error {
	u, err := e.user()
	if err != nil {
		return err
	}
	e.printJSON(convert.ToRequests(e.data.GetRequestsByUserID(ctx, u.ID)))
	return nil
}

func cmdFiles(ctx context.Context, e *env, args []string) error {
	fs := e.flags("files")
	number := fs.String("number", "", "request number, e.g. REQ-2024-0042")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := e.user()
	if err != nil {
		return err
	}
	want := strings.ToUpper(strings.TrimSpace(*number))
	if want == "" {
		return errs.Validation("need -number")
	}
	for _, r := range e.data.GetRequestsByUserID(ctx, u.ID) {
		if r.RequestNumber == want {
			e.printJSON(convert.ToFiles(e.data.GetFilesByRequestID(ctx, r.ID)))
			return nil
		}
	}
	return fmt.Errorf("%s: %w", want, errs.ErrNotFound)
}

func cmdTrack(ctx context.Context, e *env, args []string) error {
	fs := e.flags("track")
	number := fs.String("number", "", "request number")
	date := fs.String("date", "", "submission date YYYY-MM-DD (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := tracking.Track(ctx, e.data, *number, *date)
	if err != nil {
		return err
	}
	e.printJSON(res)
	return nil
}

func cmdNews(ctx context.Context, e *env, _ []string) error {
	items := e.data.GetActiveNews(ctx)
	if len(items) == 0 {
		fmt.Fprintln(e.out, "لا توجد أخبار حالياً")
		return nil
	}
	for _, n := range items {
		fmt.Fprintf(e.out, "[%s] %s\n%s\n\n", n.CreatedAt.UTC().Format(model.DateLayout), n.Title, n.Content)
	}
	return nil
}
