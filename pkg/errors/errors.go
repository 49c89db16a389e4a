package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeCarrierRejected    = "CARRIER_REJECTED"
	CodeCarrierAuth        = "CARRIER_AUTH_FAILED"
	CodeCarrierUnavailable = "CARRIER_UNAVAILABLE"
	CodeNoRatesAvailable   = "NO_RATES_AVAILABLE"
	CodeCancelRejected     = "CANCEL_REJECTED"
)

// FieldError is one field-level problem surfaced verbatim to the caller.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Errors     []FieldError      `json:"errors,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithFieldErrors attaches structured field errors.
func (e *AppError) WithFieldErrors(errs []FieldError) *AppError {
	e.Errors = append(e.Errors, errs...)
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrServiceUnavailable creates a service unavailable error
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout)
}

// ErrCarrierRejected is a carrier-side validation failure the user must fix.
func ErrCarrierRejected(carrier, message string) *AppError {
	return NewAppError(CodeCarrierRejected, message, http.StatusUnprocessableEntity).WithDetail("carrier", carrier)
}

// ErrCarrierAuth means the platform could not authenticate with a carrier.
func ErrCarrierAuth(carrier string) *AppError {
	return NewAppError(CodeCarrierAuth, fmt.Sprintf("unable to authenticate with %s", carrier), http.StatusBadGateway).
		WithDetail("carrier", carrier)
}

// ErrCarrierUnavailable means a carrier could not be reached or answered with a server error.
func ErrCarrierUnavailable(carrier string) *AppError {
	return NewAppError(CodeCarrierUnavailable, fmt.Sprintf("%s is temporarily unavailable", carrier), http.StatusBadGateway).
		WithDetail("carrier", carrier)
}

// ErrNoRatesAvailable is returned when no carrier produced a usable price.
func ErrNoRatesAvailable() *AppError {
	return NewAppError(CodeNoRatesAvailable, "no shipping rates are available right now, please retry", http.StatusServiceUnavailable)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}
