package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
)

const requestColumns = `id::text, user_id, service_type, status, request_number, submission_date,
       university_name, major, additional_notes, created_at`

// RequestRepo implements RequestRepository using PostgreSQL.
type RequestRepo struct{ db *DB }

// NewRequestRepo constructs a request repository.
func NewRequestRepo(db *DB) *RequestRepo { return &RequestRepo{db: db} }

// Create inserts a request; the database assigns id and created_at.
func (r *RequestRepo) Create(ctx context.Context, in model.NewRequest, number string) (*model.ServiceRequest, error) {
	const q = `
INSERT INTO requests (user_id, service_type, status, request_number, submission_date,
                      university_name, major, additional_notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + requestColumns
	row := r.db.Pool.QueryRow(ctx, q,
		in.UserID.String(), string(in.ServiceType), string(in.Status), number, in.SubmissionDate,
		nullable(string(in.UniversityName)), nullable(string(in.Major)), nullable(string(in.AdditionalNotes)))
	req, err := scanRequest(row)
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListByUser selects all requests of a user.
func (r *RequestRepo) ListByUser(ctx context.Context, userID model.ID) ([]model.ServiceRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM requests WHERE user_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ServiceRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// GetByNumber selects a request by its number.
func (r *RequestRepo) GetByNumber(ctx context.Context, number string) (*model.ServiceRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM requests WHERE request_number=$1`
	req, err := scanRequest(r.db.Pool.QueryRow(ctx, q, number))
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func scanRequest(row pgx.Row) (*model.ServiceRequest, error) {
	var (
		req                      model.ServiceRequest
		id, userID, svc, status  string
		submitted                time.Time
		university, major, notes *string
	)
	if err := row.Scan(&id, &userID, &svc, &status, &req.RequestNumber, &submitted,
		&university, &major, &notes, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.ID = model.ID(id)
	req.UserID = model.ID(userID)
	req.ServiceType = model.ServiceType(svc)
	req.Status = model.RequestStatus(status)
	req.SubmissionDate = submitted
	req.UniversityName = model.Optional(deref(university))
	req.Major = model.Optional(deref(major))
	req.AdditionalNotes = model.Optional(deref(notes))
	return &req, nil
}
