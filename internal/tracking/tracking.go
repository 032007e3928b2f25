// Package tracking answers "where is my request" lookups.
package tracking

import (
	"context"
	"strings"
	"time"

	"github.com/and161185/student-portal/internal/catalog"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

// StepState is the display state of one timeline step.
type StepState string

const (
	StepDone     StepState = "done"
	StepCurrent  StepState = "current"
	StepPending  StepState = "pending"
	StepRejected StepState = "rejected"
)

// Step is one entry of the request timeline.
type Step struct {
	Title string    `json:"title"`
	State StepState `json:"state"`
}

var stepTitles = [...]string{
	"تم استلام الطلب",
	"قيد المراجعة",
	"قيد المعالجة",
	"اكتمال الطلب",
}

var statusLabels = map[model.RequestStatus]string{
	model.StatusSubmitted:   "تم استلام الطلب",
	model.StatusUnderReview: "قيد المراجعة",
	model.StatusProcessing:  "قيد المعالجة",
	model.StatusApproved:    "تمت الموافقة",
	model.StatusRejected:    "مرفوض",
}

// Result is the answer to a tracking query.
type Result struct {
	RequestNumber  string              `json:"request_number"`
	SubmissionDate string              `json:"submission_date"`
	ServiceType    model.ServiceType   `json:"service_type"`
	ServiceTitle   string              `json:"service_title"`
	Status         model.RequestStatus `json:"status"`
	StatusLabel    string              `json:"status_label"`
	Steps          []Step              `json:"steps"`
}

// Finder looks requests up by number.
type Finder interface {
	GetRequestByNumber(ctx context.Context, number string) *model.ServiceRequest
}

// Track finds the request and builds its timeline. When date is given it must
// equal the submission date; a mismatch is reported as not found.
func Track(ctx context.Context, f Finder, number, date string) (Result, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !model.ValidRequestNumber(number) {
		return Result{}, errs.Validation("malformed request number")
	}
	var day time.Time
	if date != "" {
		d, err := time.Parse(model.DateLayout, date)
		if err != nil {
			return Result{}, errs.Validation("malformed date")
		}
		day = d
	}

	r := f.GetRequestByNumber(ctx, number)
	if r == nil {
		return Result{}, errs.ErrNotFound
	}
	if !day.IsZero() && r.SubmissionDate.Format(model.DateLayout) != day.Format(model.DateLayout) {
		return Result{}, errs.ErrNotFound
	}

	title := string(r.ServiceType)
	if svc, ok := catalog.ByType(r.ServiceType); ok {
		title = svc.Title
	}
	return Result{
		RequestNumber:  r.RequestNumber,
		SubmissionDate: r.SubmissionDate.Format(model.DateLayout),
		ServiceType:    r.ServiceType,
		ServiceTitle:   title,
		Status:         r.Status,
		StatusLabel:    Label(r.Status),
		Steps:          Timeline(r.Status),
	}, nil
}

// Label returns the Arabic label of st.
func Label(st model.RequestStatus) string {
	if l, ok := statusLabels[st]; ok {
		return l
	}
	return string(st)
}

// Timeline maps a status onto the four display steps.
func Timeline(st model.RequestStatus) []Step {
	current := 0
	switch st {
	case model.StatusUnderReview:
		current = 1
	case model.StatusProcessing:
		current = 2
	case model.StatusApproved, model.StatusRejected:
		current = len(stepTitles)
	}
	steps := make([]Step, len(stepTitles))
	for i, t := range stepTitles {
		steps[i].Title = t
		switch {
		case i < current:
			steps[i].State = StepDone
		case i == current:
			steps[i].State = StepCurrent
		default:
			steps[i].State = StepPending
		}
	}
	if st == model.StatusRejected {
		steps[len(steps)-1].State = StepRejected
	}
	return steps
}
