package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func strp(s string) *string { return &s }

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	u := &model.User{
		ID:         "5f0c6a3e-2b1d-4a53-9d1e-8b7a2f6c9e10",
		FullNameAr: "علي",
		FullNameEn: "Ali",
		Email:      "ali@x.com",
		Role:       model.RoleStudent,
	}

	// OK
	mock.ExpectQuery(`INSERT INTO users \(id, full_name_ar, full_name_en, email, phone_number, role\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\) RETURNING created_at`).
		WithArgs(u.ID.String(), u.FullNameAr, u.FullNameEn, u.Email, pgxmock.AnyArg(), "student").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	got, err := r.Create(ctx, u)
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt)
	require.Equal(t, u.Email, got.Email)

	// Unique violation
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(u.ID.String(), u.FullNameAr, u.FullNameEn, u.Email, pgxmock.AnyArg(), "student").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = r.Create(ctx, u)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	cols := []string{"id", "full_name_ar", "full_name_en", "email", "phone_number", "role", "created_at"}

	mock.ExpectQuery(`SELECT id, full_name_ar, full_name_en, email, phone_number, role, created_at FROM users WHERE email=\$1`).
		WithArgs("ali@x.com").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("u-1", "علي", "Ali", "ali@x.com", strp("+964770"), "student", time.Now()))
	u, err := r.GetByEmail(ctx, "ali@x.com")
	require.NoError(t, err)
	require.Equal(t, model.ID("u-1"), u.ID)
	require.Equal(t, model.Optional("+964770"), u.PhoneNumber)
	require.Equal(t, model.RoleStudent, u.Role)
	require.Empty(t, u.PasswordHash)

	mock.ExpectQuery(`FROM users WHERE email=\$1`).
		WithArgs("ghost@x.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "ghost@x.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM users WHERE email=\$1`).
		WithArgs("slow@x.com").
		WillReturnError(context.Canceled)
	_, err = r.GetByEmail(ctx, "slow@x.com")
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, mock.ExpectationsWereMet())
}
