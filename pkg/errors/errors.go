package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/medflow/pharmacy-inventory/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound             = errors.New("resource not found")
	ErrBadRequest           = errors.New("bad request")
	ErrConflict             = errors.New("resource conflict")
	ErrInternal             = errors.New("internal server error")
	ErrValidation           = errors.New("validation error")
	ErrInvalidReference     = errors.New("invalid reference")
	ErrInsufficientQuantity = errors.New("insufficient unallocated quantity")
	ErrInvariantViolation   = errors.New("invariant violation")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}

	params := e.Params
	if res, ok := params["resource"]; ok {
		key := "resources." + res
		if name := i18n.T(ctx, key, nil); name != key {
			params = make(map[string]string, len(e.Params))
			for k, v := range e.Params {
				params[k] = v
			}
			params["resource"] = name
		}
	}
	return i18n.T(ctx, e.MessageKey, params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		Params:     map[string]string{"reason": message},
		StatusCode: http.StatusBadRequest,
	}
}

// InvalidJSON reports a request body that could not be decoded
func InvalidJSON() *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    "invalid JSON body",
		MessageKey: "errors.invalid_json",
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		Params:     map[string]string{"reason": message},
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidReference reports a structurally invalid reference: a parent location
// that would close a cycle, a missing parent, or a shelf in another location.
func InvalidReference(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidReference,
		Code:       "INVALID_REFERENCE",
		Message:    message,
		MessageKey: "errors.invalid_reference",
		Params:     map[string]string{"reason": message},
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// InsufficientUnallocatedQuantity reports an allocation request larger than
// what is left of the batch.
func InsufficientUnallocatedQuantity(requested, available int) *AppError {
	req := strconv.Itoa(requested)
	avail := strconv.Itoa(available)
	return &AppError{
		Err:        ErrInsufficientQuantity,
		Code:       "INSUFFICIENT_UNALLOCATED_QUANTITY",
		Message:    fmt.Sprintf("requested %d but only %d unallocated", requested, available),
		MessageKey: "errors.insufficient_unallocated",
		Params:     map[string]string{"requested": req, "available": avail},
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"requested": req, "available": avail},
	}
}

// InvariantViolation marks an internal assertion failure. The detail is kept
// in the wrapped error for logging; clients only ever see the generic
// internal error message.
func InvariantViolation(detail string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %s", ErrInvariantViolation, detail),
		Code:       "INTERNAL_ERROR",
		Message:    "an unexpected error occurred",
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
