// Package errors defines the structured application error type and the
// engine's error taxonomy. Failures are local and non-propagating: one
// trip's subscription or scheduler failure never crashes the engine or
// affects another trip's state.
package errors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// SourceError indicates the event-source subscription failed. The engine
	// recovers by retaining last-known-good data and surfacing a status flag.
	SourceError ErrorType = "SOURCE_ERROR"
	// PermissionDenied indicates notification permission is unavailable. It
	// is surfaced only on explicit user actions, never on background polls.
	PermissionDenied ErrorType = "PERMISSION_DENIED"
	// MalformedRecord indicates a raw record was missing a field the source
	// collaborator is contractually required to provide (amount, category).
	MalformedRecord ErrorType = "MALFORMED_RECORD"

	ValidationError ErrorType = "VALIDATION_ERROR"
	NotFoundError   ErrorType = "NOT_FOUND"
	StorageError    ErrorType = "STORAGE_ERROR"
	ServerError     ErrorType = "SERVER_ERROR"
)

// AppError represents a structured application error.
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped raw error to errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Raw
}

// GetHTTPStatus returns the HTTP status the error maps to.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// New creates a new AppError.
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context.
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// Helper constructors for common errors.

func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewSourceError(err error) *AppError {
	return &AppError{
		Type:       SourceError,
		Message:    "Event source subscription failed",
		Detail:     err.Error(),
		HTTPStatus: http.StatusServiceUnavailable,
		Raw:        err,
	}
}

func NewPermissionDeniedError(detail string) *AppError {
	return &AppError{
		Type:       PermissionDenied,
		Message:    "Notification permission not granted",
		Detail:     detail,
		HTTPStatus: http.StatusConflict,
	}
}

func NewMalformedRecordError(recordID string, field string) *AppError {
	return &AppError{
		Type:       MalformedRecord,
		Message:    "Record is missing a required field",
		Detail:     fmt.Sprintf("record %s: missing %s", recordID, field),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func NewStorageError(err error, message string) *AppError {
	return &AppError{
		Type:       StorageError,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError, MalformedRecord:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusConflict
	case SourceError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
