package repository

import (
	"context"

	"github.com/and161185/student-portal/internal/model"
)

// RequestRepository provides access to service requests.
type RequestRepository interface {
	// Create inserts a request; number is generated by the caller, id and created_at by the store.
	Create(ctx context.Context, r model.NewRequest, number string) (*model.ServiceRequest, error)
	// ListByUser returns all requests owned by userID in store order.
	ListByUser(ctx context.Context, userID model.ID) ([]model.ServiceRequest, error)
	// GetByNumber loads a request by its request number.
	GetByNumber(ctx context.Context, number string) (*model.ServiceRequest, error)
}

// FileRepository provides access to attachment metadata.
type FileRepository interface {
	// Create inserts metadata pointing at an already stored blob.
	Create(ctx context.Context, requestID model.ID, fileType model.FileType, url string) (*model.UploadedFile, error)
	// ListByRequest returns the attachments of a request.
	ListByRequest(ctx context.Context, requestID model.ID) ([]model.UploadedFile, error)
}

// NewsRepository reads the news feed.
type NewsRepository interface {
	// ListActive returns active items, newest first.
	ListActive(ctx context.Context) ([]model.NewsItem, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Users    UserRepository
	Requests RequestRepository
	Files    FileRepository
	News     NewsRepository
}
