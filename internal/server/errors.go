package server

import (
	"errors"
	"net/http"

	"github.com/nickcecere/docrag/internal/errs"
)

// httpError carries the status and client-facing detail for a failure.
type httpError struct {
	status int
	detail string
	err    error
}

func (e *httpError) Error() string { return e.detail }
func (e *httpError) Unwrap() error { return e.err }

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errs.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// detailFor returns the message shown to clients. For classified errors
// that is the underlying cause without the operation prefix.
func detailFor(err error) string {
	var he *httpError
	if errors.As(err, &he) {
		return he.detail
	}
	return cause(err).Error()
}

func cause(err error) error {
	for {
		var e *errs.Error
		if !errors.As(err, &e) || e.Err == nil {
			return err
		}
		err = e.Err
	}
}

// indexingError prefixes upload failures the way clients expect.
func indexingError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return err
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrUnsupportedFormat):
		return &httpError{status: http.StatusBadRequest, detail: "Could not load document: " + cause(err).Error(), err: err}
	default:
		return &httpError{status: statusFor(err), detail: "Could not create vector store: " + cause(err).Error(), err: err}
	}
}

// answerError prefixes query failures the way clients expect.
func answerError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrValidation):
		return err
	case errors.Is(err, errs.ErrRetrieval):
		return &httpError{status: statusFor(err), detail: "Could not load vector store: " + cause(err).Error(), err: err}
	default:
		return &httpError{status: statusFor(err), detail: "Could not process query: " + cause(err).Error(), err: err}
	}
}
