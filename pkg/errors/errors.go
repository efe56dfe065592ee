// Package errors provides coded application errors shared by the repository,
// service and handler layers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for callers that need to branch on its kind.
type Code string

const (
	ErrCodeInvalidInput            Code = "INVALID_INPUT"
	ErrCodeNotFound                Code = "NOT_FOUND"
	ErrCodeDuplicateUsername       Code = "DUPLICATE_USERNAME"
	ErrCodeAccountNotFound         Code = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	ErrCodeAccountInactive         Code = "ACCOUNT_INACTIVE"
	ErrCodeInvalidCode             Code = "INVALID_CODE"
	ErrCodeCodeExpired             Code = "CODE_EXPIRED"
	ErrCodeResidentNotFound        Code = "RESIDENT_NOT_FOUND"
	ErrCodeAmbiguousResidentMatch  Code = "AMBIGUOUS_RESIDENT_MATCH"
	ErrCodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	ErrCodeRateLimited             Code = "RATE_LIMITED"
	ErrCodeUnauthorized            Code = "UNAUTHORIZED"
	ErrCodeForbidden               Code = "FORBIDDEN"
	ErrCodeStorageFailure          Code = "STORAGE_FAILURE"
)

// Error is an error carrying a Code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrDuplicateUsername       = New(ErrCodeDuplicateUsername, "username already exists")
	ErrAccountNotFound         = New(ErrCodeAccountNotFound, "account not found")
	ErrInvalidCredentials      = New(ErrCodeInvalidCredentials, "invalid username or password")
	ErrAccountInactive         = New(ErrCodeAccountInactive, "account is not active")
	ErrInvalidCode             = New(ErrCodeInvalidCode, "invalid verification code")
	ErrCodeExpired             = New(ErrCodeCodeExpired, "verification code has expired")
	ErrResidentNotFound        = New(ErrCodeResidentNotFound, "no verified resident record matches; please complete in-person verification at the barangay hall")
	ErrAmbiguousResidentMatch  = New(ErrCodeAmbiguousResidentMatch, "more than one resident record matches this name; please register at the barangay hall")
	ErrInvalidStatusTransition = New(ErrCodeInvalidStatusTransition, "account status transition not allowed")
	ErrRateLimited             = New(ErrCodeRateLimited, "too many verification codes requested; try again later")
	ErrUnauthorized            = New(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden               = New(ErrCodeForbidden, "forbidden")
)

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound returns a generic not-found error for a resource.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %s not found", resource, id)
}

// InvalidInput returns a validation error.
func InvalidInput(message string) *Error {
	return New(ErrCodeInvalidInput, message)
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeStorageFailure for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeStorageFailure
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
