package apperr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Error is a domain error. Two *Error values match under errors.Is when
// their codes are equal, so the Err* sentinels below work with any message.
type Error struct {
	Code    Code
	Message string
	// Fields names the offending input fields for validation errors.
	Fields []string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Kind returns the family of the error code.
func (e *Error) Kind() Kind { return e.Code.Kind() }

var (
	ErrValidation         = &Error{Code: CodeValidation}
	ErrSelfRequest        = &Error{Code: CodeSelfRequest}
	ErrDuplicateRequest   = &Error{Code: CodeDuplicateRequest}
	ErrDuplicateAccount   = &Error{Code: CodeDuplicateAccount}
	ErrUnknownRecipient   = &Error{Code: CodeUnknownRecipient}
	ErrInvalidInvite      = &Error{Code: CodeInvalidInvite}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized}
	ErrForbidden          = &Error{Code: CodeForbidden}
	ErrBusy               = &Error{Code: CodeBusy}
	ErrInternal           = &Error{Code: CodeInternal}
)

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports missing or malformed input fields.
func Validation(message string, fields ...string) *Error {
	return &Error{Code: CodeValidation, Message: message, Fields: fields}
}

// Internal wraps a collaborator failure. The cause keeps a stack trace for
// logging; the public message stays generic.
func Internal(cause error, message string) *Error {
	if cause == nil {
		cause = pkgerrors.New(message)
	} else {
		cause = pkgerrors.WithStack(cause)
	}
	return &Error{Code: CodeInternal, Message: message, cause: cause}
}

// From returns err as an *Error, converting unknown errors to CodeInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "internal error")
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	return From(err).Code
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}
