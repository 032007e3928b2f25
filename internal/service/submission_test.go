package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/student-portal/internal/baas/memory"
	"github.com/and161185/student-portal/internal/model"
)

func TestSubmit_WithAttachment(t *testing.T) {
	t.Parallel()
	s, b := newMem(t)

	res, err := Submit(context.Background(), s, Submission{
		Request:    model.NewRequest{UserID: "1", ServiceType: model.ServiceCertificateAuthentication, Status: model.StatusApproved},
		Attachment: &Attachment{Name: "cert.jpg", ContentType: "image/jpeg", Data: []byte{1}},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusSubmitted, res.Request.Status)
	require.NotNil(t, res.File)
	require.Equal(t, model.WriteCommitted, res.File.Status)
	require.Equal(t, model.FileCertificate, res.File.File.FileType)
	require.Len(t, b.Files(), 1)
}

func TestSubmit_WithoutAttachment(t *testing.T) {
	t.Parallel()
	s, b := newMem(t)

	res, err := Submit(context.Background(), s, Submission{
		Request: model.NewRequest{UserID: "1", ServiceType: model.ServiceVisaRequest},
	})
	require.NoError(t, err)
	require.Nil(t, res.File)
	require.Zero(t, b.Calls(memory.OpBlobUpload))
}

func TestSubmit_RequestFailure(t *testing.T) {
	t.Parallel()
	s, b := newMem(t)
	b.FailNext(memory.OpRequestCreate, errors.New("down"))

	_, err := Submit(context.Background(), s, Submission{
		Request:    model.NewRequest{UserID: "1", ServiceType: model.ServiceVisaRequest},
		Attachment: &Attachment{Name: "v.pdf"},
	})
	require.ErrorIs(t, err, ErrSubmitFailed)
	require.Zero(t, b.Calls(memory.OpBlobUpload))
}

func TestSubmit_UploadFailureKeepsRequest(t *testing.T) {
	t.Parallel()
	s, b := newMem(t)
	b.FailNext(memory.OpBlobUpload, errors.New("down"))

	res, err := Submit(context.Background(), s, Submission{
		Request:    model.NewRequest{UserID: "1", ServiceType: model.ServicePassportRenewal},
		Attachment: &Attachment{Name: "p.pdf"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	require.Equal(t, model.WriteFailed, res.File.Status)
	require.NotNil(t, s.GetRequestByNumber(context.Background(), res.Request.RequestNumber))
}
