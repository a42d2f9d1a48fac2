package httpapi

import (
	"errors"
	"net/http"

	"github.com/reifenwerk/ledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "bad_request")
}

// statusFor maps the error taxonomy onto HTTP statuses and stable codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrPeriodLocked):
		return http.StatusConflict, "period_locked"
	case errors.Is(err, errs.ErrAlreadyLocked):
		return http.StatusConflict, "already_locked"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, errs.ErrAlreadyReversed):
		return http.StatusConflict, "already_reversed"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errs.ErrNotInitialized):
		return http.StatusPreconditionFailed, "not_initialized"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// serviceErr writes err as returned by a service. Internal errors are logged
// and not echoed to the client.
func (s *Server) serviceErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "req_id", reqID(r), "path", r.URL.Path, "err", err)
		writeErr(w, status, "internal error", code)
		return
	}
	writeErr(w, status, err.Error(), code)
}
