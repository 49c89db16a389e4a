package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/errors"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
)

// toAppError maps domain and carrier errors onto the HTTP error model
func toAppError(err error) *errors.AppError {
	if err == nil {
		return nil
	}

	var reqErr *domain.RequestValidationError
	if stderrors.As(err, &reqErr) {
		return errors.ErrValidation("invalid shipment request").
			WithFieldErrors(fieldErrors(reqErr.Errors)).
			Wrap(err)
	}

	if ce, ok := domain.AsCarrierError(err); ok {
		return fromCarrierError(ce)
	}

	switch {
	case stderrors.Is(err, domain.ErrCarrierNotRegistered):
		return errors.ErrNotFound("carrier").Wrap(err)
	case stderrors.Is(err, domain.ErrNoRatesAvailable):
		return errors.ErrNoRatesAvailable().Wrap(err)
	case stderrors.Is(err, domain.ErrServiceNotOffered):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout("request").Wrap(err)
	}
	return errors.FromError(err)
}

// errCancelRejected is returned when a carrier refuses to void a shipment,
// usually because it has already been picked up.
func errCancelRejected(carrier, trackingNumber string) *errors.AppError {
	return errors.NewAppError(errors.CodeCancelRejected,
		fmt.Sprintf("%s refused to cancel shipment %s", carrier, trackingNumber),
		http.StatusConflict).
		WithDetail("carrier", carrier).
		WithDetail("trackingNumber", trackingNumber)
}

func fromCarrierError(ce *domain.CarrierError) *errors.AppError {
	var appErr *errors.AppError
	switch ce.Kind {
	case domain.ErrorKindAuth:
		appErr = errors.ErrCarrierAuth(ce.Carrier)
	case domain.ErrorKindValidation:
		appErr = errors.ErrValidation(ce.Message).WithFieldErrors(fieldErrors(ce.Errors))
		if ce.Carrier != "" {
			appErr = appErr.WithDetail("carrier", ce.Carrier)
		}
	case domain.ErrorKindTransport:
		switch {
		case stderrors.Is(ce, context.DeadlineExceeded):
			appErr = errors.ErrTimeout(ce.Carrier + " request").WithDetail("carrier", ce.Carrier)
		case stderrors.Is(ce, resilience.ErrCircuitOpen):
			appErr = errors.ErrServiceUnavailable(ce.Carrier).WithDetail("carrier", ce.Carrier)
		default:
			appErr = errors.ErrCarrierUnavailable(ce.Carrier)
		}
	default:
		appErr = errors.ErrCarrierRejected(ce.Carrier, ce.Message).WithFieldErrors(fieldErrors(ce.Errors))
	}
	return appErr.Wrap(ce)
}

func fieldErrors(details []domain.ErrorDetail) []errors.FieldError {
	if len(details) == 0 {
		return nil
	}
	out := make([]errors.FieldError, 0, len(details))
	for _, d := range details {
		out = append(out, errors.FieldError{Field: d.Field, Message: d.Message, Value: d.Value})
	}
	return out
}
