// Package forms validates the portal's input forms before any backend call.
// Messages are the Arabic texts shown to the user.
package forms

import (
	"net/mail"
	"strings"
	"time"

	"github.com/and161185/student-portal/internal/catalog"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

// Error is a user-facing validation failure.
type Error struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return errs.ErrValidation }

const (
	titleCaptcha = "التحقق مطلوب"
	titleError   = "خطأ"
)

var (
	ErrCaptcha          = &Error{Title: titleCaptcha, Message: "يرجى إكمال اختبار التحقق البشري أولاً"}
	ErrPasswordMismatch = &Error{Title: titleError, Message: "كلمات المرور غير متطابقة"}
	ErrMissingFields    = &Error{Title: titleError, Message: "يرجى ملء جميع الحقول المطلوبة"}
	ErrBadEmail         = &Error{Title: titleError, Message: "البريد الإلكتروني غير صالح"}
	ErrUnknownService   = &Error{Title: titleError, Message: "الخدمة المطلوبة غير موجودة"}
	ErrMissingFile      = &Error{Title: titleError, Message: "يرجى تحميل الملف المطلوب"}
	ErrBadDate          = &Error{Title: titleError, Message: "تاريخ تقديم الطلب غير صالح"}
)

// Login is the login dialog.
type Login struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	CaptchaOK bool   `json:"-"`
}

// Validate checks the captcha first, then the fields.
func (f Login) Validate() error {
	if !f.CaptchaOK {
		return ErrCaptcha
	}
	if strings.TrimSpace(f.Email) == "" || f.Password == "" {
		return ErrMissingFields
	}
	return nil
}

// Signup is the account creation dialog.
type Signup struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	CaptchaOK       bool   `json:"-"`
}

// Validate checks, in order: captcha, password confirmation, required fields, email shape.
func (f Signup) Validate() error {
	if !f.CaptchaOK {
		return ErrCaptcha
	}
	if f.Password != f.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Email) == "" || f.Password == "" {
		return ErrMissingFields
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(f.Email)); err != nil {
		return ErrBadEmail
	}
	return nil
}

// Request is a service form.
type Request struct {
	Service        string `json:"service"` // catalog slug
	UniversityName string `json:"university_name"`
	Major          string `json:"major"`
	Notes          string `json:"additional_notes"`
	SubmissionDate string `json:"submission_date"` // YYYY-MM-DD, today when empty
	HasFile        bool   `json:"-"`
}

// Validate resolves the service and checks the fields it requires.
func (f Request) Validate() (catalog.Service, error) {
	svc, ok := catalog.BySlug(f.Service)
	if !ok {
		return catalog.Service{}, ErrUnknownService
	}
	if svc.NeedsStudyInfo && (strings.TrimSpace(f.UniversityName) == "" || strings.TrimSpace(f.Major) == "") {
		return catalog.Service{}, ErrMissingFields
	}
	if !f.HasFile {
		return catalog.Service{}, ErrMissingFile
	}
	if f.SubmissionDate != "" {
		if _, err := time.Parse(model.DateLayout, f.SubmissionDate); err != nil {
			return catalog.Service{}, ErrBadDate
		}
	}
	return svc, nil
}

// NewRequest builds the request for userID; Validate must have passed.
func (f Request) NewRequest(userID model.ID, svc catalog.Service, now time.Time) model.NewRequest {
	day := now.UTC().Truncate(24 * time.Hour)
	if f.SubmissionDate != "" {
		if d, err := time.Parse(model.DateLayout, f.SubmissionDate); err == nil {
			day = d
		}
	}
	return model.NewRequest{
		UserID:          userID,
		ServiceType:     svc.Type,
		Status:          model.StatusSubmitted,
		SubmissionDate:  day,
		UniversityName:  model.Optional(strings.TrimSpace(f.UniversityName)),
		Major:           model.Optional(strings.TrimSpace(f.Major)),
		AdditionalNotes: model.Optional(strings.TrimSpace(f.Notes)),
	}
}
