// Package postgrest implements the repository interfaces over the Supabase
// REST (PostgREST) endpoint.
package postgrest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/student-portal/internal/model"
)

// flexID accepts identifiers serialized either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// stamp parses timestamps with or without zone and plain dates.
type stamp time.Time

var stampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	model.DateLayout,
}

func (s *stamp) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil || raw == "" {
		*s = stamp(time.Time{})
		return nil
	}
	for _, l := range stampLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			*s = stamp(t)
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

func (s stamp) time() time.Time { return time.Time(s) }

func optional(p *string) model.Optional {
	if p == nil {
		return ""
	}
	return model.Optional(strings.TrimSpace(*p))
}

func nullable(o model.Optional) *string {
	if !o.IsSet() {
		return nil
	}
	s := string(o)
	return &s
}

type userRow struct {
	ID          flexID  `json:"id"`
	FullNameAr  string  `json:"full_name_ar"`
	FullNameEn  string  `json:"full_name_en"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Role        string  `json:"role"`
	CreatedAt   stamp   `json:"created_at"`
}

func (r userRow) model() *model.User {
	return &model.User{
		ID:          model.ID(r.ID),
		FullNameAr:  r.FullNameAr,
		FullNameEn:  r.FullNameEn,
		Email:       r.Email,
		PhoneNumber: optional(r.PhoneNumber),
		Role:        model.Role(r.Role),
		CreatedAt:   r.CreatedAt.time(),
	}
}

type userInsert struct {
	ID          string  `json:"id"`
	FullNameAr  string  `json:"full_name_ar"`
	FullNameEn  string  `json:"full_name_en"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Role        string  `json:"role"`
}

type requestRow struct {
	ID              flexID  `json:"id"`
	UserID          flexID  `json:"user_id"`
	ServiceType     string  `json:"service_type"`
	Status          string  `json:"status"`
	RequestNumber   string  `json:"request_number"`
	SubmissionDate  stamp   `json:"submission_date"`
	UniversityName  *string `json:"university_name"`
	Major           *string `json:"major"`
	AdditionalNotes *string `json:"additional_notes"`
	CreatedAt       stamp   `json:"created_at"`
}

func (r requestRow) model() model.ServiceRequest {
	return model.ServiceRequest{
		ID:              model.ID(r.ID),
		UserID:          model.ID(r.UserID),
		ServiceType:     model.ServiceType(r.ServiceType),
		Status:          model.RequestStatus(r.Status),
		RequestNumber:   r.RequestNumber,
		SubmissionDate:  r.SubmissionDate.time(),
		UniversityName:  optional(r.UniversityName),
		Major:           optional(r.Major),
		AdditionalNotes: optional(r.AdditionalNotes),
		CreatedAt:       r.CreatedAt.time(),
	}
}

type requestInsert struct {
	UserID          string  `json:"user_id"`
	ServiceType     string  `json:"service_type"`
	Status          string  `json:"status"`
	RequestNumber   string  `json:"request_number"`
	SubmissionDate  string  `json:"submission_date"`
	UniversityName  *string `json:"university_name"`
	Major           *string `json:"major"`
	AdditionalNotes *string `json:"additional_notes"`
}

type fileRow struct {
	ID         flexID `json:"id"`
	RequestID  flexID `json:"request_id"`
	FileType   string `json:"file_type"`
	FilePath   string `json:"file_path"`
	UploadedAt stamp  `json:"uploaded_at"`
}

func (r fileRow) model() model.UploadedFile {
	return model.UploadedFile{
		ID:         model.ID(r.ID),
		RequestID:  model.ID(r.RequestID),
		FileType:   model.FileType(r.FileType),
		FilePath:   r.FilePath,
		UploadedAt: r.UploadedAt.time(),
	}
}

type fileInsert struct {
	RequestID string `json:"request_id"`
	FileType  string `json:"file_type"`
	FilePath  string `json:"file_path"`
}

type newsRow struct {
	ID        flexID `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsActive  bool   `json:"is_active"`
	CreatedAt stamp  `json:"created_at"`
}

func (r newsRow) model() model.NewsItem {
	return model.NewsItem{
		ID:        model.ID(r.ID),
		Title:     r.Title,
		Content:   r.Content,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.time(),
	}
}
