// Package errs defines the error taxonomy shared by the docrag core.
//
// Collaborator failures (loaders, embedders, the vector index, the LLM) are
// wrapped into an *Error carrying a Kind, the operation, and the store or
// identifier involved. Callers match kinds with errors.Is against the
// sentinel values below.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindStorage           Kind = "storage"
	KindRetrieval         Kind = "retrieval"
	KindGeneration        Kind = "generation"
	KindValidation        Kind = "validation"
)

// Sentinels for errors.Is matching.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrStorage           = &Error{Kind: KindStorage}
	ErrRetrieval         = &Error{Kind: KindRetrieval}
	ErrGeneration        = &Error{Kind: KindGeneration}
	ErrValidation        = &Error{Kind: KindValidation}
)

// Error is a classified error with diagnostic context.
type Error struct {
	Kind      Kind
	Op        string // operation, e.g. "store.upsert"
	Target    string // store name, index id, or file path
	Err       error
	Retryable bool
}

// E builds an *Error. Deadline expiry or a temporary provider status in err
// marks the error retryable.
func E(kind Kind, op, target string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Target:    target,
		Err:       err,
		Retryable: temporary(err),
	}
}

func temporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Temporary()
}

// StatusError is a non-success HTTP response from a model provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether the same request may succeed later: rate limits
// and server-side failures.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Errorf builds an *Error from a format string.
func Errorf(kind Kind, op, target, format string, args ...any) *Error {
	return E(kind, op, target, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Kind))
	if e.Target != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Target)
		sb.WriteString("]")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Target == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether any *Error in err's chain is retryable.
func IsRetryable(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Retryable {
			return true
		}
		err = e.Err
	}
	return false
}
