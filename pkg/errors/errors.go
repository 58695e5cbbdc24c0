package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is reports whether target carries the same code, so copies produced by
// WithInternal or WithMessage still match their sentinel.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	// ErrImmutableRole is the Forbidden subtype returned for builtin role mutations.
	ErrImmutableRole = &AppError{
		Code:       "ROLE_IMMUTABLE",
		Message:    "immutable role",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource conflict",
		StatusCode: http.StatusConflict,
	}

	ErrInvalidArgument = &AppError{
		Code:       "INVALID_ARGUMENT",
		Message:    "Invalid argument",
		StatusCode: http.StatusBadRequest,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// NewInvalidArgument reports a malformed identifier or value passed to a check.
func NewInvalidArgument(message string) *AppError {
	return ErrInvalidArgument.WithMessage(message)
}

// NewForbidden reports a denial carrying the evaluator's reason.
func NewForbidden(reason string) *AppError {
	return ErrForbidden.WithMessage(reason)
}

// NewConflict reports a duplicate record or a lost update.
func NewConflict(message string) *AppError {
	return ErrConflict.WithMessage(message)
}

// IsForbidden reports whether err is a denial, including the immutable role subtype.
func IsForbidden(err error) bool {
	appErr := asAppError(err)
	return appErr != nil && appErr.StatusCode == http.StatusForbidden
}

// IsUnauthorized reports whether err maps to a 401.
func IsUnauthorized(err error) bool {
	appErr := asAppError(err)
	return appErr != nil && appErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err maps to a 404.
func IsNotFound(err error) bool {
	appErr := asAppError(err)
	return appErr != nil && appErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err maps to a 409.
func IsConflict(err error) bool {
	appErr := asAppError(err)
	return appErr != nil && appErr.StatusCode == http.StatusConflict
}

// IsInvalidArgument reports whether err maps to a 400.
func IsInvalidArgument(err error) bool {
	appErr := asAppError(err)
	return appErr != nil && appErr.StatusCode == http.StatusBadRequest
}

func asAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
