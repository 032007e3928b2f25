package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/blob"
	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/metrics"
	"github.com/and161185/student-portal/internal/model"
)

const defaultContentType = "application/octet-stream"

func (s *DataServiceImpl) GetFilesByRequestID(ctx context.Context, requestID model.ID) []model.UploadedFile {
	if requestID == "" {
		return []model.UploadedFile{}
	}
	list, err := s.store.Files.ListByRequest(ctx, requestID)
	if err != nil {
		s.fail("get_files_by_request", err, zap.String("request", requestID.String()))
		return []model.UploadedFile{}
	}
	if list == nil {
		list = []model.UploadedFile{}
	}
	return list
}

// UploadFile writes the blob first. Metadata is only inserted after the blob
// exists; if that insert fails the blob stays behind and is reported as the orphan.
func (s *DataServiceImpl) UploadFile(ctx context.Context, in model.NewFile, data []byte) model.FileResult {
	const op = "upload_file"
	switch {
	case in.RequestID == "":
		s.fail(op, errs.Validation("request id is required"))
		return model.FileResult{}
	case !in.FileType.Valid():
		s.fail(op, errs.Validation("unknown file type"), zap.String("file_type", string(in.FileType)))
		return model.FileResult{}
	case strings.TrimSpace(in.Name) == "":
		s.fail(op, errs.Validation("file name is required"))
		return model.FileResult{}
	}
	key, ok := blob.UploadKey(in.RequestID, in.FileType, in.Name)
	if !ok {
		s.fail(op, errs.Validation("file name is not usable"), zap.String("name", in.Name))
		return model.FileResult{}
	}
	if s.blobs == nil {
		s.fail(op, errs.ErrNotConfigured)
		return model.FileResult{}
	}

	ct := in.ContentType
	if ct == "" {
		ct = defaultContentType
	}
	if err := s.blobs.Upload(ctx, key, data, ct); err != nil {
		s.fail(op, err, zap.String("key", key), zap.String("stage", "blob"))
		return model.FileResult{}
	}

	url := s.blobs.PublicURL(key)
	f, err := s.store.Files.Create(ctx, in.RequestID, in.FileType, url)
	if err != nil {
		metrics.PartialWrite(op)
		s.log.Error("file metadata insert failed, blob left without metadata",
			zap.String("key", key), zap.String("request", in.RequestID.String()), zap.Error(err))
		return model.FileResult{Outcome: model.Outcome{Status: model.WritePartial, Orphan: key}}
	}
	return model.FileResult{File: f, Outcome: model.Outcome{Status: model.WriteCommitted}}
}
