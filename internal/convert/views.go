// Package convert maps domain entities to the JSON views served by the
// HTTP API and printed by the terminal client.
package convert

import (
	"time"

	"github.com/and161185/student-portal/internal/catalog"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/tracking"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func opt(o model.Optional) *string {
	if !o.IsSet() {
		return nil
	}
	s := string(o)
	return &s
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

// --- User ---

// User is the public view of a profile. The password hash is never exposed.
type User struct {
	ID          string     `json:"id"`
	FullNameAr  string     `json:"full_name_ar"`
	FullNameEn  string     `json:"full_name_en"`
	Email       string     `json:"email"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
	Role        string     `json:"role"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// ToUser converts a profile.
func ToUser(u model.User) User {
	return User{
		ID:          u.ID.String(),
		FullNameAr:  u.FullNameAr,
		FullNameEn:  u.FullNameEn,
		Email:       u.Email,
		PhoneNumber: opt(u.PhoneNumber),
		Role:        string(u.Role),
		CreatedAt:   ts(u.CreatedAt),
	}
}

// --- Requests ---

// Request is the view of a service request.
type Request struct {
	ID              string     `json:"id"`
	RequestNumber   string     `json:"request_number"`
	ServiceType     string     `json:"service_type"`
	ServiceTitle    string     `json:"service_title"`
	Status          string     `json:"status"`
	StatusLabel     string     `json:"status_label"`
	SubmissionDate  string     `json:"submission_date"`
	UniversityName  *string    `json:"university_name,omitempty"`
	Major           *string    `json:"major,omitempty"`
	AdditionalNotes *string    `json:"additional_notes,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// ToRequest converts a request, resolving display titles from the catalog.
func ToRequest(r model.ServiceRequest) Request {
	title := string(r.ServiceType)
	if svc, ok := catalog.ByType(r.ServiceType); ok {
		title = svc.Title
	}
	return Request{
		ID:              r.ID.String(),
		RequestNumber:   r.RequestNumber,
		ServiceType:     string(r.ServiceType),
		ServiceTitle:    title,
		Status:          string(r.Status),
		StatusLabel:     tracking.Label(r.Status),
		SubmissionDate:  day(r.SubmissionDate),
		UniversityName:  opt(r.UniversityName),
		Major:           opt(r.Major),
		AdditionalNotes: opt(r.AdditionalNotes),
		CreatedAt:       ts(r.CreatedAt),
	}
}

// ToRequests converts a slice of requests; the result is never nil.
func ToRequests(rs []model.ServiceRequest) []Request {
	out := make([]Request, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToRequest(r))
	}
	return out
}

// --- Files ---

// File is the view of attachment metadata.
type File struct {
	ID         string     `json:"id"`
	RequestID  string     `json:"request_id"`
	FileType   string     `json:"file_type"`
	FilePath   string     `json:"file_path"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

// ToFile converts attachment metadata.
func ToFile(f model.UploadedFile) File {
	return File{
		ID:         f.ID.String(),
		RequestID:  f.RequestID.String(),
		FileType:   string(f.FileType),
		FilePath:   f.FilePath,
		UploadedAt: ts(f.UploadedAt),
	}
}

// ToFiles converts a slice of attachments; the result is never nil.
func ToFiles(fs []model.UploadedFile) []File {
	out := make([]File, 0, len(fs))
	for _, f := range fs {
		out = append(out, ToFile(f))
	}
	return out
}

// Upload reports how far an attachment upload got.
type Upload struct {
	Status string `json:"status"`
	File   *File  `json:"file,omitempty"`
	Orphan string `json:"orphan,omitempty"`
}

// ToUpload converts an upload outcome.
func ToUpload(r model.FileResult) Upload {
	out := Upload{Status: r.Status.String(), Orphan: r.Orphan}
	if r.File != nil {
		f := ToFile(*r.File)
		out.File = &f
	}
	return out
}

// --- News ---

// News is the view of a news item.
type News struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ToNews converts news items; the result is never nil.
func ToNews(items []model.NewsItem) []News {
	out := make([]News, 0, len(items))
	for _, n := range items {
		out = append(out, News{ID: n.ID.String(), Title: n.Title, Content: n.Content, CreatedAt: ts(n.CreatedAt)})
	}
	return out
}
