package postgres

import (
	"context"

	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a profile row and returns it as stored.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
INSERT INTO users (id, full_name_ar, full_name_en, email, phone_number, role)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	out := *u
	out.PasswordHash = ""
	err := r.db.Pool.QueryRow(ctx, q, u.ID.String(), u.FullNameAr, u.FullNameEn, u.Email, nullable(string(u.PhoneNumber)), string(u.Role)).
		Scan(&out.CreatedAt)
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByEmail selects a profile by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT id, full_name_ar, full_name_en, email, phone_number, role, created_at
FROM users WHERE email=$1`
	var (
		u     model.User
		id    string
		phone *string
		role  string
	)
	err := r.db.Pool.QueryRow(ctx, q, email).Scan(&id, &u.FullNameAr, &u.FullNameEn, &u.Email, &phone, &role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.ID = model.ID(id)
	u.PhoneNumber = model.Optional(deref(phone))
	u.Role = model.Role(role)
	return &u, nil
}
