package cloudevents

import (
	"time"
)

// Event types published by the shipping service
const (
	ShipmentSubmitted = "shipping.shipment.submitted"
	ShipmentFailed    = "shipping.shipment.failed"
	ShipmentCancelled = "shipping.shipment.cancelled"
	TrackingUpdated   = "shipping.tracking.updated"
)

// SourceShipping is the CloudEvents source of this service
const SourceShipping = "/shipping/carrier-gateway"

// ShippingCloudEvent represents a CloudEvents v1.0 compliant event
type ShippingCloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data"`

	CorrelationID string `json:"correlationid,omitempty"`
	Carrier       string `json:"carrier,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
	TraceState    string `json:"tracestate,omitempty"`
}

// ShipmentSubmittedData is the payload of ShipmentSubmitted
type ShipmentSubmittedData struct {
	SubmissionID   string `json:"submissionId"`
	Carrier        string `json:"carrier"`
	Service        string `json:"service"`
	TrackingNumber string `json:"trackingNumber"`
	LabelURL       string `json:"labelUrl,omitempty"`
	Reference      string `json:"reference,omitempty"`
}

// ShipmentFailedData is the payload of ShipmentFailed
type ShipmentFailedData struct {
	SubmissionID string   `json:"submissionId"`
	Carrier      string   `json:"carrier"`
	Service      string   `json:"service"`
	Reason       string   `json:"reason"`
	Errors       []string `json:"errors,omitempty"`
}

// ShipmentCancelledData is the payload of ShipmentCancelled
type ShipmentCancelledData struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
}

// TrackingUpdatedData is the payload of TrackingUpdated
type TrackingUpdatedData struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"trackingNumber"`
	Status         string     `json:"status"`
	RawStatus      string     `json:"rawStatus,omitempty"`
	Description    string     `json:"description,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}
