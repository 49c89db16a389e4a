package domain

import (
	"sort"
	"strings"
	"time"
)

// TrackingStatus is the carrier-independent shipment status
type TrackingStatus string

const (
	TrackingStatusUnknown        TrackingStatus = "unknown"
	TrackingStatusPending        TrackingStatus = "pending"
	TrackingStatusInTransit      TrackingStatus = "in_transit"
	TrackingStatusOutForDelivery TrackingStatus = "out_for_delivery"
	TrackingStatusDelivered      TrackingStatus = "delivered"
	TrackingStatusException      TrackingStatus = "exception"
)

// IsTerminal reports whether no further movement is expected
func (s TrackingStatus) IsTerminal() bool {
	return s == TrackingStatusDelivered
}

// statusCodes maps exact carrier status codes (FedEx derived codes, UPS
// status types, DHL statusCode values) and the enum names themselves.
var statusCodes = map[string]TrackingStatus{
	// FedEx
	"DL": TrackingStatusDelivered,
	"IT": TrackingStatusInTransit,
	"PU": TrackingStatusInTransit,
	"DP": TrackingStatusInTransit,
	"AR": TrackingStatusInTransit,
	"OD": TrackingStatusOutForDelivery,
	"DE": TrackingStatusException,
	"SE": TrackingStatusException,
	"CA": TrackingStatusException,
	"OC": TrackingStatusPending,
	// UPS
	"D":  TrackingStatusDelivered,
	"I":  TrackingStatusInTransit,
	"P":  TrackingStatusInTransit,
	"M":  TrackingStatusPending,
	"MV": TrackingStatusPending,
	"X":  TrackingStatusException,
	"RS": TrackingStatusException,
	// DHL
	"PRE-TRANSIT": TrackingStatusPending,
	"TRANSIT":     TrackingStatusInTransit,
	"DELIVERED":   TrackingStatusDelivered,
	"FAILURE":     TrackingStatusException,
	"UNKNOWN":     TrackingStatusUnknown,
	// normalized names
	"PENDING":          TrackingStatusPending,
	"IN_TRANSIT":       TrackingStatusInTransit,
	"OUT_FOR_DELIVERY": TrackingStatusOutForDelivery,
	"EXCEPTION":        TrackingStatusException,
}

// statusKeywords is checked in order; exception wording goes first so that
// "delivery failed" never reads as delivered.
var statusKeywords = []struct {
	status   TrackingStatus
	keywords []string
}{
	{TrackingStatusException, []string{
		"exception", "failed", "failure", "unable to deliver", "undeliverable", "not delivered",
		"returned", "return to sender", "returning", "damaged", "lost", "refused", "cancelled",
		"canceled", "held", "on hold", "delay", "incorrect address", "address issue",
	}},
	{TrackingStatusOutForDelivery, []string{
		"out for delivery", "out_for_delivery", "vehicle for delivery", "delivery vehicle",
		"with delivery courier", "out with courier", "with courier for delivery", "with delivery driver",
		"delivery in progress",
	}},
	{TrackingStatusDelivered, []string{"delivered", "signed for", "picked up by recipient"}},
	{TrackingStatusPending, []string{
		"label created", "label printed", "pre-transit", "pre_transit", "shipment information received",
		"shipment information sent", "manifest", "awaiting", "pending", "order processed", "shipment created",
		"not yet in system", "ready for pickup by carrier",
	}},
	{TrackingStatusInTransit, []string{
		"in transit", "in_transit", "transit", "departed", "arrived", "picked up", "pickup scan",
		"processed", "processing", "on the way", "facility", "shipped", "en route", "customs", "sorting",
		"forwarded", "origin scan", "destination scan",
	}},
}

// NormalizeStatus maps a raw carrier status onto the closed status set.
// Unrecognized input maps to unknown; it never fails.
func NormalizeStatus(raw string) TrackingStatus {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TrackingStatusUnknown
	}

	if status, ok := statusCodes[strings.ToUpper(trimmed)]; ok {
		return status
	}

	lower := strings.ToLower(trimmed)
	for _, group := range statusKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.status
			}
		}
	}
	return TrackingStatusUnknown
}

// TrackingEvent is one scan in a shipment history
type TrackingEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	Status      TrackingStatus `json:"status"`
	RawStatus   string         `json:"rawStatus,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
}

// NewTrackingEvent builds an event with a normalized status. The
// description is tried when the raw code alone is not recognized.
func NewTrackingEvent(ts time.Time, rawStatus, description, location string) TrackingEvent {
	status := NormalizeStatus(rawStatus)
	if status == TrackingStatusUnknown {
		status = NormalizeStatus(description)
	}
	return TrackingEvent{
		Timestamp:   ts,
		Status:      status,
		RawStatus:   rawStatus,
		Description: description,
		Location:    location,
	}
}

// TrackingResponse is the normalized tracking state of one shipment.
// Build it with NewTrackingResponse or UnknownTracking only.
type TrackingResponse struct {
	TrackingNumber    string          `json:"trackingNumber"`
	Carrier           string          `json:"carrier"`
	Status            TrackingStatus  `json:"status"`
	RawStatus         string          `json:"rawStatus,omitempty"`
	Description       string          `json:"description"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
	SignedBy          string          `json:"signedBy,omitempty"`
	Events            []TrackingEvent `json:"events"`
	CurrentLocation   string          `json:"currentLocation,omitempty"`
	RawResponse       []byte          `json:"-"`
}

// TrackingDetails is the carrier-neutral input of NewTrackingResponse
type TrackingDetails struct {
	RawStatus         string
	Description       string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	SignedBy          string
	Events            []TrackingEvent
	CurrentLocation   string
	RawResponse       []byte
}

// NewTrackingResponse normalizes the raw status and orders events newest first
func NewTrackingResponse(carrier, trackingNumber string, d TrackingDetails) *TrackingResponse {
	status := NormalizeStatus(d.RawStatus)
	if status == TrackingStatusUnknown {
		status = NormalizeStatus(d.Description)
	}

	events := append([]TrackingEvent(nil), d.Events...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if status == TrackingStatusUnknown && len(events) > 0 {
		status = events[0].Status
	}

	description := d.Description
	if description == "" {
		description = d.RawStatus
	}
	if description == "" && len(events) > 0 {
		description = events[0].Description
	}
	if description == "" {
		description = "no status description provided"
	}

	location := d.CurrentLocation
	if location == "" && len(events) > 0 {
		location = events[0].Location
	}

	if events == nil {
		events = []TrackingEvent{}
	}

	return &TrackingResponse{
		TrackingNumber:    trackingNumber,
		Carrier:           carrier,
		Status:            status,
		RawStatus:         d.RawStatus,
		Description:       description,
		EstimatedDelivery: d.EstimatedDelivery,
		DeliveredAt:       d.DeliveredAt,
		SignedBy:          d.SignedBy,
		Events:            events,
		CurrentLocation:   location,
		RawResponse:       d.RawResponse,
	}
}

// UnknownTracking is the safe result of a failed tracking poll
func UnknownTracking(carrier, trackingNumber, description string) *TrackingResponse {
	if strings.TrimSpace(description) == "" {
		description = "tracking information unavailable"
	}
	return &TrackingResponse{
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
		Status:         TrackingStatusUnknown,
		Description:    description,
		Events:         []TrackingEvent{},
	}
}
