package domain

import (
	"strings"
)

// Label is a carrier label reference: a URL, base64 image data, or both
type Label struct {
	URL    string      `json:"url,omitempty"`
	Data   string      `json:"data,omitempty"`
	Format LabelFormat `json:"format,omitempty"`
}

// IsEmpty reports whether the label has neither URL nor data
func (l *Label) IsEmpty() bool {
	return l == nil || (l.URL == "" && l.Data == "")
}

// Document is an auxiliary shipping document such as a commercial invoice
type Document struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
	Data   string `json:"data,omitempty"`
	URL    string `json:"url,omitempty"`
}

// ShipmentResponse is the outcome of a shipment creation
type ShipmentResponse struct {
	Success        bool          `json:"success"`
	Carrier        string        `json:"carrier"`
	TrackingNumber string        `json:"trackingNumber,omitempty"`
	ShipmentID     string        `json:"shipmentId,omitempty"`
	Label          *Label        `json:"label,omitempty"`
	Documents      []Document    `json:"documents,omitempty"`
	Message        string        `json:"message,omitempty"`
	Errors         []ErrorDetail `json:"errors,omitempty"`
	RawResponse    []byte        `json:"-"`
}

// ShipmentSucceeded builds a successful response. A missing tracking
// number turns it into a business failure.
func ShipmentSucceeded(carrier, trackingNumber, shipmentID string, label *Label, raw []byte) *ShipmentResponse {
	if strings.TrimSpace(trackingNumber) == "" {
		resp := ShipmentFailed(carrier, "carrier did not return a tracking number", nil, raw)
		resp.ShipmentID = shipmentID
		return resp
	}
	return &ShipmentResponse{
		Success:        true,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		ShipmentID:     shipmentID,
		Label:          label,
		RawResponse:    raw,
	}
}

// ShipmentFailed builds a failure response
func ShipmentFailed(carrier, message string, errs []ErrorDetail, raw []byte) *ShipmentResponse {
	if message == "" {
		message = "shipment could not be created"
	}
	if len(errs) == 0 {
		errs = []ErrorDetail{{Field: "general", Message: message}}
	}
	return &ShipmentResponse{
		Success:     false,
		Carrier:     carrier,
		Message:     message,
		Errors:      errs,
		RawResponse: raw,
	}
}

// ShipmentFailedFromError converts any error into a failure response,
// keeping the structured details of a CarrierError.
func ShipmentFailedFromError(carrier string, err error) *ShipmentResponse {
	if ce, ok := AsCarrierError(err); ok {
		return ShipmentFailed(carrier, ce.Message, ce.Errors, []byte(ce.RawResponse))
	}
	return ShipmentFailed(carrier, err.Error(), nil, nil)
}

// LabelResponse is the outcome of an independent label fetch
type LabelResponse struct {
	Success        bool   `json:"success"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	Label          *Label `json:"label,omitempty"`
	Message        string `json:"message,omitempty"`
}

// LabelFound builds a successful label response
func LabelFound(carrier, trackingNumber string, label *Label) *LabelResponse {
	if label.IsEmpty() {
		return LabelNotFound(carrier, trackingNumber, "carrier returned an empty label")
	}
	return &LabelResponse{
		Success:        true,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		Label:          label,
	}
}

// LabelNotFound builds a failure label response
func LabelNotFound(carrier, trackingNumber, message string) *LabelResponse {
	if message == "" {
		message = "no label found for tracking number"
	}
	return &LabelResponse{
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		Message:        message,
	}
}
