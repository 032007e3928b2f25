package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/metrics"
	"github.com/and161185/student-portal/internal/model"
)

// Metadata keys sent to the auth provider on sign-up.
const (
	MetaFullNameAr  = "full_name_ar"
	MetaFullNameEn  = "full_name_en"
	MetaRole        = "role"
	MetaPhoneNumber = "phone_number"
)

func (s *DataServiceImpl) GetUserByEmail(ctx context.Context, email string) *model.User {
	if email == "" {
		return nil
	}
	u, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		s.fail("get_user_by_email", err, zap.String("email", email))
		return nil
	}
	u.PasswordHash = ""
	return u
}

// CreateUser runs the two-phase registration. A profile insert failure after a
// successful sign-up is reported as WritePartial with the identity id as orphan;
// the identity is not removed.
func (s *DataServiceImpl) CreateUser(ctx context.Context, in model.NewUser) model.UserResult {
	const op = "create_user"
	if err := validateNewUser(in); err != nil {
		s.fail(op, err)
		return model.UserResult{}
	}
	if s.reg == nil {
		s.fail(op, errs.ErrNotConfigured)
		return model.UserResult{}
	}
	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}

	md := map[string]string{
		MetaFullNameAr: in.FullNameAr,
		MetaFullNameEn: in.FullNameEn,
		MetaRole:       string(role),
	}
	if in.PhoneNumber.IsSet() {
		md[MetaPhoneNumber] = string(in.PhoneNumber)
	}
	id, _, err := s.reg.SignUp(ctx, in.Email, in.Password, md)
	if err != nil {
		s.fail(op, err, zap.String("email", in.Email), zap.String("stage", "identity"))
		return model.UserResult{}
	}
	if id.ID == "" {
		s.fail(op, errors.New("provider returned no identity id"), zap.String("email", in.Email))
		return model.UserResult{}
	}

	u, err := s.store.Users.Create(ctx, &model.User{
		ID:          id.ID,
		FullNameAr:  in.FullNameAr,
		FullNameEn:  in.FullNameEn,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Role:        role,
	})
	if err != nil {
		metrics.PartialWrite(op)
		s.log.Error("profile insert failed, identity left without profile",
			zap.String("identity", id.ID.String()), zap.String("email", in.Email), zap.Error(err))
		return model.UserResult{Outcome: model.Outcome{Status: model.WritePartial, Orphan: id.ID.String()}}
	}
	u.PasswordHash = ""
	return model.UserResult{User: u, Outcome: model.Outcome{Status: model.WriteCommitted}}
}

func validateNewUser(in model.NewUser) error {
	switch {
	case strings.TrimSpace(in.Email) == "":
		return errs.Validation("email is required")
	case in.Password == "":
		return errs.Validation("password is required")
	case in.Role != "" && in.Role != model.RoleStudent && in.Role != model.RoleAdmin:
		return errs.Validation("unknown role")
	}
	return nil
}
