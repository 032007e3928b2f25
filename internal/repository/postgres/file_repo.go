package postgres

import (
	"context"

	"github.com/and161185/student-portal/internal/model"
)

// FileRepo implements FileRepository using PostgreSQL.
type FileRepo struct{ db *DB }

// NewFileRepo constructs a file metadata repository.
func NewFileRepo(db *DB) *FileRepo { return &FileRepo{db: db} }

// Create inserts attachment metadata. The request must exist (FK).
func (r *FileRepo) Create(ctx context.Context, requestID model.ID, fileType model.FileType, fileURL string) (*model.UploadedFile, error) {
	const q = `
INSERT INTO files (request_id, file_type, file_path)
VALUES ($1, $2, $3)
RETURNING id::text, uploaded_at`
	f := model.UploadedFile{RequestID: requestID, FileType: fileType, FilePath: fileURL}
	var id string
	if err := r.db.Pool.QueryRow(ctx, q, requestID.String(), string(fileType), fileURL).Scan(&id, &f.UploadedAt); err != nil {
		return nil, err
	}
	f.ID = model.ID(id)
	return &f, nil
}

// ListByRequest selects the attachments of a request.
func (r *FileRepo) ListByRequest(ctx context.Context, requestID model.ID) ([]model.UploadedFile, error) {
	const q = `
SELECT id::text, request_id::text, file_type, file_path, uploaded_at
FROM files WHERE request_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, requestID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.UploadedFile, 0)
	for rows.Next() {
		var (
			f         model.UploadedFile
			id, reqID string
			fileType  string
		)
		if err := rows.Scan(&id, &reqID, &fileType, &f.FilePath, &f.UploadedAt); err != nil {
			return nil, err
		}
		f.ID = model.ID(id)
		f.RequestID = model.ID(reqID)
		f.FileType = model.FileType(fileType)
		out = append(out, f)
	}
	return out, rows.Err()
}
