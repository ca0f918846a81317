package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies mapping errors.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindAlreadyExists ErrorKind = "already_exists"
	KindConflict      ErrorKind = "conflict"
	KindValidation    ErrorKind = "validation"
	KindProtected     ErrorKind = "protected"
	KindAccessDenied  ErrorKind = "access_denied"
	KindStale         ErrorKind = "stale"
	KindAmbiguous     ErrorKind = "ambiguous"
	KindConnection    ErrorKind = "connection"
	KindCodec         ErrorKind = "codec"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrProtected     = &Error{Kind: KindProtected}
	ErrAccessDenied  = &Error{Kind: KindAccessDenied}
	ErrStale         = &Error{Kind: KindStale}
	ErrAmbiguous     = &Error{Kind: KindAmbiguous}
	ErrConnection    = &Error{Kind: KindConnection}
	ErrCodec         = &Error{Kind: KindCodec}
)

// Error is the single error type returned by every public operation of the
// package. Backend errors are wrapped, not replaced.
type Error struct {
	Kind    ErrorKind // Error category
	Op      string    // Operation that failed (load, save, create, ...)
	DN      string    // DN involved, if any
	Message string    // Human-readable detail
	Timeout bool      // Set on connection errors caused by a deadline
	Cause   error     // Underlying error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("%s failed (%s)", e.Op, e.Kind))
	} else {
		parts = append(parts, string(e.Kind))
	}

	if e.Timeout {
		parts = append(parts, "timeout")
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " - ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsRetryable reports whether a read that failed with this error may be
// reissued unchanged.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindConnection || e.Kind == KindNotFound
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, op, dn, message string) *Error {
	return &Error{Kind: kind, Op: op, DN: dn, Message: message}
}

func validationError(op, dn, format string, args ...any) *Error {
	return NewError(KindValidation, op, dn, fmt.Sprintf(format, args...))
}

func staleError(op, dn string) *Error {
	return NewError(KindStale, op, dn, "object was deleted")
}

// WrapError attaches operation context to err. Errors that are already an
// *Error keep their kind; deadline and cancellation errors become connection
// errors; anything else is treated as a transport failure.
func WrapError(op, dn string, err error) error {
	if err == nil {
		return nil
	}

	var mErr *Error
	if errors.As(err, &mErr) {
		wrapped := *mErr
		if wrapped.Op == "" {
			wrapped.Op = op
		}
		if wrapped.DN == "" {
			wrapped.DN = dn
		}
		return &wrapped
	}

	wrapped := &Error{
		Kind:  KindConnection,
		Op:    op,
		DN:    dn,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		wrapped.Timeout = true
	}

	return wrapped
}

// KindOf returns the kind of err, or "" if err is not a mapping error.
func KindOf(err error) ErrorKind {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Kind
	}
	return ""
}

// IsRetryable reports whether a failed read may be retried by the caller.
// Validation, protection and ambiguity errors never are.
func IsRetryable(err error) bool {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.IsRetryable()
	}
	return false
}

// IsTimeout reports whether err is a connection error caused by a deadline.
func IsTimeout(err error) bool {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Kind == KindConnection && mErr.Timeout
	}
	return false
}

// IsNotFoundError checks if an error indicates a missing entry.
func IsNotFoundError(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsAlreadyExistsError checks if an error indicates an occupied DN.
func IsAlreadyExistsError(err error) bool {
	return KindOf(err) == KindAlreadyExists
}

// IsValidationError checks if an error was raised by local validation.
func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}
