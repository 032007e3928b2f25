package service

import (
	"context"
	"errors"

	"github.com/and161185/student-portal/internal/catalog"
	"github.com/and161185/student-portal/internal/model"
)

// ErrSubmitFailed is returned when the request row could not be created.
var ErrSubmitFailed = errors.New("request not created")

// Attachment is an optional file sent with a service form.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission is a completed service form.
type Submission struct {
	Request    model.NewRequest
	Attachment *Attachment
}

// SubmitResult reports the created request and, when an attachment was sent, its upload.
type SubmitResult struct {
	Request *model.ServiceRequest
	File    *model.FileResult
}

// Submit creates the request with status submitted, then uploads the attachment
// as the file type the catalog assigns to the service. An upload failure does not
// undo the request; it is visible in SubmitResult.File.
func Submit(ctx context.Context, ds DataService, sub Submission) (SubmitResult, error) {
	in := sub.Request
	in.Status = model.StatusSubmitted
	r := ds.CreateRequest(ctx, in)
	if r == nil {
		return SubmitResult{}, ErrSubmitFailed
	}
	res := SubmitResult{Request: r}
	if a := sub.Attachment; a != nil {
		fr := ds.UploadFile(ctx, model.NewFile{
			RequestID:   r.ID,
			FileType:    catalog.FileTypeFor(r.ServiceType),
			Name:        a.Name,
			ContentType: a.ContentType,
		}, a.Data)
		res.File = &fr
	}
	return res, nil
}
