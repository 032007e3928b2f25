package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/student-portal/internal/errs"
	"github.com/and161185/student-portal/internal/forms"
	"github.com/and161185/student-portal/internal/service"
	"github.com/and161185/student-portal/internal/session"
)

const (
	msgLoginRequired  = "يرجى تسجيل الدخول أولاً"
	msgBadCredentials = "البريد الإلكتروني أو كلمة المرور غير صحيحة"
	msgRateLimited    = "محاولات كثيرة، يرجى المحاولة لاحقاً"
	msgExists         = "البريد الإلكتروني مسجل مسبقاً"
	msgNoProfile      = "لم يتم العثور على الملف الشخصي لهذا الحساب"
	msgNotFound       = "لم يتم العثور على الطلب"
	msgUnavailable    = "الخدمة غير متاحة حالياً"
	msgFailed         = "حدث خطأ، يرجى المحاولة مرة أخرى"
)

type errorBody struct {
	Error   string `json:"error"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errs.Validation("malformed JSON body")
	}
	return nil
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var fe *forms.Error
	if errors.As(err, &fe) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation", Title: fe.Title, Message: fe.Message})
		return
	}
	var pe *errs.PartialWriteError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "partial_write", Stage: pe.Stage, Message: msgFailed})
		return
	}

	switch {
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", msgBadCredentials)
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", msgRateLimited)
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", msgExists)
	case errors.Is(err, errs.ErrProfileMissing):
		writeError(w, http.StatusForbidden, "profile_missing", msgNoProfile)
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", msgNotFound)
	case errors.Is(err, errs.ErrNotConfigured), errors.Is(err, errs.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", msgUnavailable)
	case errors.Is(err, session.ErrSignupFailed), errors.Is(err, service.ErrSubmitFailed):
		writeError(w, http.StatusBadGateway, "upstream", msgFailed)
	default:
		writeError(w, http.StatusInternalServerError, "internal", msgFailed)
	}
}
