package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

func (s *DataServiceImpl) GetRequestsByUserID(ctx context.Context, userID model.ID) []model.ServiceRequest {
	if userID == "" {
		return []model.ServiceRequest{}
	}
	list, err := s.store.Requests.ListByUser(ctx, userID)
	if err != nil {
		s.fail("get_requests_by_user", err, zap.String("user", userID.String()))
		return []model.ServiceRequest{}
	}
	if list == nil {
		list = []model.ServiceRequest{}
	}
	return list
}

func (s *DataServiceImpl) GetRequestByNumber(ctx context.Context, number string) *model.ServiceRequest {
	if number == "" {
		return nil
	}
	r, err := s.store.Requests.GetByNumber(ctx, number)
	if err != nil {
		s.fail("get_request_by_number", err, zap.String("number", number))
		return nil
	}
	return r
}

// CreateRequest inserts in under a freshly generated request number taken
// from the submission year. An unset submission date becomes today (UTC).
// A number collision is reported like any other insert failure.
func (s *DataServiceImpl) CreateRequest(ctx context.Context, in model.NewRequest) *model.ServiceRequest {
	const op = "create_request"
	switch {
	case in.UserID == "":
		s.fail(op, errs.Validation("user id is required"))
		return nil
	case !in.ServiceType.Valid():
		s.fail(op, errs.Validation("unknown service type"), zap.String("service_type", string(in.ServiceType)))
		return nil
	}
	if in.Status == "" {
		in.Status = model.StatusSubmitted
	}
	if in.SubmissionDate.IsZero() {
		in.SubmissionDate = s.now().UTC().Truncate(24 * time.Hour)
	}
	number := model.FormatRequestNumber(in.SubmissionDate.Year(), s.seq())
	r, err := s.store.Requests.Create(ctx, in, number)
	if err != nil {
		s.fail(op, err, zap.String("number", number), zap.String("user", in.UserID.String()))
		return nil
	}
	return r
}
