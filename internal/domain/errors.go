package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	ErrCarrierNotRegistered = errors.New("carrier not registered")
	ErrServiceNotOffered    = errors.New("service not offered by carrier")
	ErrNoRatesAvailable     = errors.New("no carrier returned a usable rate")
	ErrMissingCredentials   = errors.New("carrier credentials are not configured")
	ErrUnsupported          = errors.New("operation not supported by carrier")
)

// ErrorKind classifies carrier failures. The kind decides retry and
// propagation policy, never the carrier that produced it.
type ErrorKind string

const (
	// ErrorKindAuth is bad or missing credentials; fatal for the carrier for the rest of the request.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindValidation is a carrier rejecting a field of the request.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindTransport is a timeout, connection failure, 5xx, or undecodable body.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindBusiness is a 2xx answer that still means the operation failed.
	ErrorKindBusiness ErrorKind = "business"
)

// ErrorDetail is one structured field error reported by a carrier
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
	Code    string `json:"code,omitempty"`
}

// CarrierError is the single normalized error type for every carrier
type CarrierError struct {
	Carrier     string        `json:"carrier,omitempty"`
	Kind        ErrorKind     `json:"kind"`
	Message     string        `json:"message"`
	Errors      []ErrorDetail `json:"errors,omitempty"`
	RawResponse string        `json:"-"`
	StatusCode  int           `json:"statusCode,omitempty"`
	Err         error         `json:"-"`
}

// NewCarrierError creates a carrier error of the given kind
func NewCarrierError(carrier string, kind ErrorKind, message string, cause error) *CarrierError {
	return &CarrierError{
		Carrier: carrier,
		Kind:    kind,
		Message: message,
		Err:     cause,
	}
}

func (e *CarrierError) Error() string {
	msg := e.Message
	if e.Carrier != "" {
		msg = e.Carrier + ": " + msg
	}
	if e.Err != nil && !strings.Contains(msg, e.Err.Error()) {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CarrierError) Unwrap() error {
	return e.Err
}

// Retryable reports whether an idempotent call may be retried
func (e *CarrierError) Retryable() bool {
	return e.Kind == ErrorKindTransport
}

// AsCarrierError extracts a *CarrierError from err
func AsCarrierError(err error) (*CarrierError, bool) {
	var ce *CarrierError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsAuthError reports whether err is a carrier authentication failure
func IsAuthError(err error) bool {
	ce, ok := AsCarrierError(err)
	return ok && ce.Kind == ErrorKindAuth
}

// IsTransportError reports whether err is a transient carrier failure
func IsTransportError(err error) bool {
	ce, ok := AsCarrierError(err)
	return ok && ce.Kind == ErrorKindTransport
}

// RequestValidationError lists every invalid field of a request
type RequestValidationError struct {
	Errors []ErrorDetail
}

func (e *RequestValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return "invalid shipment request: " + strings.Join(parts, "; ")
}
