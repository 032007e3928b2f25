package postgrest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/and161185/student-portal/internal/baas"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/repository"
)

const (
	restPrefix   = "/rest/v1/"
	singleObject = "application/vnd.pgrst.object+json"
)

var (
	_ repository.UserRepository    = (*UserRepo)(nil)
	_ repository.RequestRepository = (*RequestRepo)(nil)
	_ repository.FileRepository    = (*FileRepo)(nil)
	_ repository.NewsRepository    = (*NewsRepo)(nil)
)

// NewStore wires all repositories over one client.
func NewStore(c *baas.Client) repository.Store {
	return repository.Store{
		Users:    &UserRepo{c: c},
		Requests: &RequestRepo{c: c},
		Files:    &FileRepo{c: c},
		News:     &NewsRepo{c: c},
	}
}

func eq(v string) []string { return []string{"eq." + v} }

func selectAll(ctx context.Context, c *baas.Client, table string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("select", "*")
	return c.DoJSON(ctx, baas.Request{Method: http.MethodGet, Path: restPrefix + table, Query: q}, nil, out)
}

// selectOne asks for a single object; zero or several rows yield errs.ErrNotFound.
func selectOne(ctx context.Context, c *baas.Client, table string, q url.Values, out any) error {
	q.Set("select", "*")
	h := http.Header{}
	h.Set("Accept", singleObject)
	return c.DoJSON(ctx, baas.Request{Method: http.MethodGet, Path: restPrefix + table, Query: q, Header: h}, nil, out)
}

// insertOne inserts body and reads the stored row back.
func insertOne(ctx context.Context, c *baas.Client, table string, body, out any) error {
	h := http.Header{}
	h.Set("Prefer", "return=representation")
	h.Set("Accept", singleObject)
	return c.DoJSON(ctx, baas.Request{Method: http.MethodPost, Path: restPrefix + table, Query: url.Values{"select": {"*"}}, Header: h}, body, out)
}

// UserRepo reads and writes the users table.
type UserRepo struct{ c *baas.Client }

// Create inserts the profile row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (*model.User, error) {
	var row userRow
	err := insertOne(ctx, r.c, "users", userInsert{
		ID:          u.ID.String(),
		FullNameAr:  u.FullNameAr,
		FullNameEn:  u.FullNameEn,
		Email:       u.Email,
		PhoneNumber: nullable(u.PhoneNumber),
		Role:        string(u.Role),
	}, &row)
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

// GetByEmail loads the profile with the given email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var row userRow
	if err := selectOne(ctx, r.c, "users", url.Values{"email": eq(email)}, &row); err != nil {
		return nil, err
	}
	return row.model(), nil
}

// RequestRepo reads and writes the requests table.
type RequestRepo struct{ c *baas.Client }

// Create inserts a request carrying the given number.
func (r *RequestRepo) Create(ctx context.Context, in model.NewRequest, number string) (*model.ServiceRequest, error) {
	var row requestRow
	err := insertOne(ctx, r.c, "requests", requestInsert{
		UserID:          in.UserID.String(),
		ServiceType:     string(in.ServiceType),
		Status:          string(in.Status),
		RequestNumber:   number,
		SubmissionDate:  in.SubmissionDate.Format(model.DateLayout),
		UniversityName:  nullable(in.UniversityName),
		Major:           nullable(in.Major),
		AdditionalNotes: nullable(in.AdditionalNotes),
	}, &row)
	if err != nil {
		return nil, err
	}
	m := row.model()
	return &m, nil
}

// ListByUser returns the user's requests.
func (r *RequestRepo) ListByUser(ctx context.Context, userID model.ID) ([]model.ServiceRequest, error) {
	var rows []requestRow
	if err := selectAll(ctx, r.c, "requests", url.Values{"user_id": eq(userID.String())}, &rows); err != nil {
		return nil, err
	}
	out := make([]model.ServiceRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// GetByNumber loads a request by number.
func (r *RequestRepo) GetByNumber(ctx context.Context, number string) (*model.ServiceRequest, error) {
	var row requestRow
	if err := selectOne(ctx, r.c, "requests", url.Values{"request_number": eq(number)}, &row); err != nil {
		return nil, err
	}
	m := row.model()
	return &m, nil
}

// FileRepo reads and writes the files table.
type FileRepo struct{ c *baas.Client }

// Create inserts attachment metadata.
func (r *FileRepo) Create(ctx context.Context, requestID model.ID, fileType model.FileType, fileURL string) (*model.UploadedFile, error) {
	var row fileRow
	err := insertOne(ctx, r.c, "files", fileInsert{
		RequestID: requestID.String(),
		FileType:  string(fileType),
		FilePath:  fileURL,
	}, &row)
	if err != nil {
		return nil, err
	}
	m := row.model()
	return &m, nil
}

// ListByRequest returns a request's attachments.
func (r *FileRepo) ListByRequest(ctx context.Context, requestID model.ID) ([]model.UploadedFile, error) {
	var rows []fileRow
	if err := selectAll(ctx, r.c, "files", url.Values{"request_id": eq(requestID.String())}, &rows); err != nil {
		return nil, err
	}
	out := make([]model.UploadedFile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// NewsRepo reads the news table.
type NewsRepo struct{ c *baas.Client }

// ListActive returns is_active=true rows ordered by created_at desc.
func (r *NewsRepo) ListActive(ctx context.Context) ([]model.NewsItem, error) {
	var rows []newsRow
	q := url.Values{"is_active": eq("true"), "order": {"created_at.desc"}}
	if err := selectAll(ctx, r.c, "news", q, &rows); err != nil {
		return nil, err
	}
	out := make([]model.NewsItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}
