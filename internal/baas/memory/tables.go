package memory

import (
	"context"
	"strings"

	"github.com/and161185/student-portal/internal/blob"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/repository"
)

var (
	_ repository.UserRepository    = usersTable{}
	_ repository.RequestRepository = requestsTable{}
	_ repository.FileRepository    = filesTable{}
	_ repository.NewsRepository    = newsTable{}
	_ blob.Store                   = (*Backend)(nil)
)

type usersTable struct{ b *Backend }

func (t usersTable) Create(ctx context.Context, u *model.User) (*model.User, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUserCreate); err != nil {
		return nil, err
	}
	for _, x := range b.users {
		if x.ID == u.ID || strings.EqualFold(x.Email, u.Email) {
			return nil, errs.ErrAlreadyExists
		}
	}
	row := *u
	row.PasswordHash = ""
	row.CreatedAt = b.now()
	b.users = append(b.users, row)
	return &row, nil
}

func (t usersTable) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUserGet); err != nil {
		return nil, err
	}
	for _, x := range b.users {
		if x.Email == email {
			u := x
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

type requestsTable struct{ b *Backend }

func (t requestsTable) Create(ctx context.Context, in model.NewRequest, number string) (*model.ServiceRequest, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpRequestCreate); err != nil {
		return nil, err
	}
	for _, x := range b.requests {
		if x.RequestNumber == number {
			return nil, errs.ErrAlreadyExists
		}
	}
	r := model.ServiceRequest{
		ID:              newID(),
		UserID:          in.UserID,
		ServiceType:     in.ServiceType,
		Status:          in.Status,
		RequestNumber:   number,
		SubmissionDate:  in.SubmissionDate,
		UniversityName:  in.UniversityName,
		Major:           in.Major,
		AdditionalNotes: in.AdditionalNotes,
		CreatedAt:       b.now(),
	}
	b.requests = append(b.requests, r)
	return &r, nil
}

func (t requestsTable) ListByUser(ctx context.Context, userID model.ID) ([]model.ServiceRequest, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpRequestList); err != nil {
		return nil, err
	}
	out := make([]model.ServiceRequest, 0)
	for _, x := range b.requests {
		if x.UserID == userID {
			out = append(out, x)
		}
	}
	return out, nil
}

func (t requestsTable) GetByNumber(ctx context.Context, number string) (*model.ServiceRequest, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpRequestGet); err != nil {
		return nil, err
	}
	for _, x := range b.requests {
		if x.RequestNumber == number {
			r := x
			return &r, nil
		}
	}
	return nil, errs.ErrNotFound
}

type filesTable struct{ b *Backend }

func (t filesTable) Create(ctx context.Context, requestID model.ID, fileType model.FileType, fileURL string) (*model.UploadedFile, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFileCreate); err != nil {
		return nil, err
	}
	found := false
	for _, x := range b.requests {
		if x.ID == requestID {
			found = true
			break
		}
	}
	if !found {
		return nil, errs.ErrNotFound
	}
	f := model.UploadedFile{
		ID:         newID(),
		RequestID:  requestID,
		FileType:   fileType,
		FilePath:   fileURL,
		UploadedAt: b.now(),
	}
	b.files = append(b.files, f)
	return &f, nil
}

func (t filesTable) ListByRequest(ctx context.Context, requestID model.ID) ([]model.UploadedFile, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFileList); err != nil {
		return nil, err
	}
	out := make([]model.UploadedFile, 0)
	for _, x := range b.files {
		if x.RequestID == requestID {
			out = append(out, x)
		}
	}
	return out, nil
}

type newsTable struct{ b *Backend }

func (t newsTable) ListActive(ctx context.Context) ([]model.NewsItem, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpNewsList); err != nil {
		return nil, err
	}
	out := make([]model.NewsItem, 0, len(b.news))
	for _, n := range b.news {
		if n.IsActive {
			out = append(out, n)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Upload stores data at key. Existing keys are rejected like the hosted bucket does.
func (b *Backend) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpBlobUpload); err != nil {
		return err
	}
	if _, ok := b.blobs[key]; ok {
		return errs.ErrAlreadyExists
	}
	b.blobs[key] = blobEntry{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// PublicURL mirrors the hosted bucket's public URL layout.
func (b *Backend) PublicURL(key string) string {
	return b.baseURL + "/storage/v1/object/public/files/" + strings.TrimLeft(key, "/")
}
