// Package service contains the data access adapter between the portal and
// its backend: profiles, service requests, attachments and news.
package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/blob"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/metrics"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/repository"
)

// DataService is the record-level API used by sessions and front ends.
// Every operation fails soft: backend errors are logged and reported as
// an absent value, an empty sequence or a Failed/Partial outcome.
type DataService interface {
	// GetUserByEmail returns the single profile with exactly this email.
	GetUserByEmail(ctx context.Context, email string) *model.User
	// CreateUser registers the identity with the auth provider, then inserts the profile.
	CreateUser(ctx context.Context, in model.NewUser) model.UserResult
	// GetRequestsByUserID returns the user's requests; never nil.
	GetRequestsByUserID(ctx context.Context, userID model.ID) []model.ServiceRequest
	// GetRequestByNumber looks a request up by its request number.
	GetRequestByNumber(ctx context.Context, number string) *model.ServiceRequest
	// CreateRequest assigns a request number and inserts the request.
	CreateRequest(ctx context.Context, in model.NewRequest) *model.ServiceRequest
	// GetFilesByRequestID returns the attachments of a request; never nil.
	GetFilesByRequestID(ctx context.Context, requestID model.ID) []model.UploadedFile
	// UploadFile stores the blob, then inserts metadata carrying its public URL.
	UploadFile(ctx context.Context, in model.NewFile, data []byte) model.FileResult
	// GetActiveNews returns active news, newest first; never nil.
	GetActiveNews(ctx context.Context) []model.NewsItem
}

var _ DataService = (*DataServiceImpl)(nil)

type DataServiceImpl struct {
	store repository.Store
	blobs blob.Store
	reg   auth.Registrar
	log   *zap.Logger

	now func() time.Time
	seq func() int // request number suffix source, [0, 10000)
}

// NewDataService constructs the adapter. reg may be nil when the caller never creates users.
func NewDataService(store repository.Store, blobs blob.Store, reg auth.Registrar, log *zap.Logger) *DataServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &DataServiceImpl{
		store: store,
		blobs: blobs,
		reg:   reg,
		log:   log,
		now:   time.Now,
		seq:   func() int { return rand.IntN(10000) },
	}
}

// fail logs a degraded operation. Misses are expected and logged at debug.
func (s *DataServiceImpl) fail(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if errors.Is(err, errs.ErrNotFound) {
		s.log.Debug("not found", fields...)
		return
	}
	metrics.AdapterFailure(op)
	s.log.Warn("data access failed", fields...)
}
