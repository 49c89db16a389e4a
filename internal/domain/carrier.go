package domain

import (
	"context"
)

// Carrier names, used as lookup keys everywhere
const (
	CarrierFedEx = "fedex"
	CarrierDHL   = "dhl"
	CarrierUPS   = "ups"
	CarrierMyUS  = "myus"
)

// Carrier is the uniform contract over one carrier's REST API.
//
// GetRates and CreateShipment are caller-driven decisions and return errors.
// GetLabel, Track and CancelShipment run in bulk or background contexts and
// never fail; they return safe defaults and log instead.
type Carrier interface {
	// Name returns the stable lowercase carrier identifier.
	Name() string

	// Authenticate establishes or refreshes the session. It is a no-op
	// returning true while a non-expired session exists.
	Authenticate(ctx context.Context) (bool, error)

	// IsAuthenticated checks the current session without I/O.
	IsAuthenticated() bool

	// GetRates returns zero or more normalized quotes, or a *CarrierError.
	GetRates(ctx context.Context, req ShipmentRequest) ([]RateResponse, error)

	// CreateShipment returns a failure response for business rejections and
	// an error only for transport or auth failures. contents is read only by
	// carriers that need commercial invoice lines.
	CreateShipment(ctx context.Context, req ShipmentRequest, contents ...PackageContents) (*ShipmentResponse, error)

	// GetLabel re-fetches a previously generated label.
	GetLabel(ctx context.Context, trackingNumber string) *LabelResponse

	// Track returns the normalized tracking state, status unknown on failure.
	Track(ctx context.Context, trackingNumber string) *TrackingResponse

	// CancelShipment voids a shipment, false on any failure.
	CancelShipment(ctx context.Context, trackingNumber string) bool

	// ValidateAddress normalizes an address; identity when unsupported.
	ValidateAddress(ctx context.Context, address Address) Address
}
