package common

import (
	"errors"
	"net/http"
)

// Error codes shared by every handler.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeTransport  = "TRANSPORT_ERROR"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL"
)

// Sentinel kinds, matched by errors.Is against any AppError with the same code.
var (
	ErrValidation = &AppError{Code: CodeValidation}
	ErrNotFound   = &AppError{Code: CodeNotFound}
	ErrTransport  = &AppError{Code: CodeTransport}
	ErrConflict   = &AppError{Code: CodeConflict}
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message != "" {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an AppError of the same kind.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if e == nil || !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports bad input. Nothing has been committed when it is returned.
func Validation(message string, details any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusUnprocessableEntity, Details: details}
}

// NotFound reports a missing record.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Transport wraps a failed call to a collaborator such as Postgres or Redis.
func Transport(message string, err error) *AppError {
	return &AppError{Code: CodeTransport, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// Conflict reports that the target already exists.
func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// WriteError renders err using the canonical error body. Errors that are not
// AppErrors are reported as internal failures without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		msg := appErr.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		JSONError(w, status, appErr.Code, msg, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}
