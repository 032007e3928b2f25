// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// ID is an opaque identifier issued by the backing store or the auth provider.
type ID string

// String returns the identifier as is.
func (id ID) String() string { return string(id) }

// Optional is a text field that may be absent. The zero value means absent.
type Optional string

// IsSet reports whether the field carries a value.
func (o Optional) IsSet() bool { return o != "" }

// Role of a portal account.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// ServiceType is the closed set of administrative services a student may request.
type ServiceType string

const (
	ServiceCertificateAuthentication ServiceType = "certificate_authentication"
	ServiceCertificateDocumentation  ServiceType = "certificate_documentation"
	ServiceMinistryAuthentication    ServiceType = "ministry_authentication"
	ServicePassportRenewal           ServiceType = "passport_renewal"
	ServiceVisaRequest               ServiceType = "visa_request"
)

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceCertificateAuthentication, ServiceCertificateDocumentation,
		ServiceMinistryAuthentication, ServicePassportRenewal, ServiceVisaRequest:
		return true
	}
	return false
}

// RequestStatus is changed by the back office only.
type RequestStatus string

const (
	StatusSubmitted   RequestStatus = "submitted"
	StatusUnderReview RequestStatus = "under_review"
	StatusProcessing  RequestStatus = "processing"
	StatusApproved    RequestStatus = "approved"
	StatusRejected    RequestStatus = "rejected"
)

// FileType classifies an attachment.
type FileType string

const (
	FilePassport    FileType = "passport"
	FileCertificate FileType = "certificate"
	FileVisaRequest FileType = "visa_request"
	FileOther       FileType = "other"
)

// Valid reports whether t is one of the known file types.
func (t FileType) Valid() bool {
	switch t {
	case FilePassport, FileCertificate, FileVisaRequest, FileOther:
		return true
	}
	return false
}

// DateLayout is the wire format of submission dates.
const DateLayout = "2006-01-02"

var requestNumberRE = regexp.MustCompile(`^REQ-\d{4}-\d{4}$`)

// FormatRequestNumber renders REQ-<year>-<nnnn>; seq is taken modulo 10000.
func FormatRequestNumber(year, seq int) string {
	return fmt.Sprintf("REQ-%04d-%04d", year, seq%10000)
}

// ValidRequestNumber reports whether s has the request number shape.
func ValidRequestNumber(s string) bool { return requestNumberRE.MatchString(s) }

// User is the application-owned profile mirrored from the auth provider identity.
type User struct {
	ID           ID // provider-issued identity id
	FullNameAr   string
	FullNameEn   string
	Email        string // unique, lookup key
	PasswordHash string // always empty outside the provider
	PhoneNumber  Optional
	Role         Role
	CreatedAt    time.Time
}

// NewUser carries the fields needed to register an account.
type NewUser struct {
	FullNameAr  string
	FullNameEn  string
	Email       string
	Password    string // handed to the auth provider only
	PhoneNumber Optional
	Role        Role
}

// ServiceRequest is a submitted administrative request.
type ServiceRequest struct {
	ID              ID
	UserID          ID // owner
	ServiceType     ServiceType
	Status          RequestStatus
	RequestNumber   string    // REQ-<year>-<nnnn>, assigned on creation
	SubmissionDate  time.Time // date only
	UniversityName  Optional
	Major           Optional
	AdditionalNotes Optional
	CreatedAt       time.Time
}

// NewRequest is a request before the store assigns id, number and timestamp.
type NewRequest struct {
	UserID          ID
	ServiceType     ServiceType
	Status          RequestStatus
	SubmissionDate  time.Time
	UniversityName  Optional
	Major           Optional
	AdditionalNotes Optional
}

// UploadedFile is attachment metadata; FilePath holds the public URL.
type UploadedFile struct {
	ID         ID
	RequestID  ID // FK -> requests.id
	FileType   FileType
	FilePath   string
	UploadedAt time.Time
}

// NewFile describes an attachment before upload.
type NewFile struct {
	RequestID   ID
	FileType    FileType
	Name        string // original file name
	ContentType string
}

// NewsItem is a news feed entry.
type NewsItem struct {
	ID        ID
	Title     string
	Content   string
	IsActive  bool
	CreatedAt time.Time
}

// WriteStatus is the result of a two-phase write.
type WriteStatus int

const (
	// WriteFailed means nothing was written.
	WriteFailed WriteStatus = iota
	// WritePartial means the first phase was kept and the second failed.
	WritePartial
	// WriteCommitted means both phases succeeded.
	WriteCommitted
)

func (s WriteStatus) String() string {
	switch s {
	case WritePartial:
		return "partial"
	case WriteCommitted:
		return "committed"
	default:
		return "failed"
	}
}

// Outcome describes how far a two-phase write got.
type Outcome struct {
	Status WriteStatus
	Orphan string // identity id or blob path left behind on WritePartial
}

// UserResult is returned by account creation.
type UserResult struct {
	User *User // nil unless committed
	Outcome
}

// FileResult is returned by attachment upload.
type FileResult struct {
	File *UploadedFile // nil unless committed
	Outcome
}
