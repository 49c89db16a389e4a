package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/tracing"
)

// EventFactory creates CloudEvents for shipping domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new event, copying the correlation id and W3C trace
// context from ctx.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) *ShippingCloudEvent {
	event := &ShippingCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = v
	}

	tc := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, tc)
	event.TraceParent = tc.Get("traceparent")
	event.TraceState = tc.Get("tracestate")

	return event
}

// ShipmentSubmittedEvent builds a ShipmentSubmitted event
func (f *EventFactory) ShipmentSubmittedEvent(ctx context.Context, data ShipmentSubmittedData) *ShippingCloudEvent {
	event := f.CreateEvent(ctx, ShipmentSubmitted, "shipment/"+data.TrackingNumber, data)
	event.Carrier = data.Carrier
	return event
}

// ShipmentFailedEvent builds a ShipmentFailed event
func (f *EventFactory) ShipmentFailedEvent(ctx context.Context, data ShipmentFailedData) *ShippingCloudEvent {
	event := f.CreateEvent(ctx, ShipmentFailed, "submission/"+data.SubmissionID, data)
	event.Carrier = data.Carrier
	return event
}

// ShipmentCancelledEvent builds a ShipmentCancelled event
func (f *EventFactory) ShipmentCancelledEvent(ctx context.Context, data ShipmentCancelledData) *ShippingCloudEvent {
	event := f.CreateEvent(ctx, ShipmentCancelled, "shipment/"+data.TrackingNumber, data)
	event.Carrier = data.Carrier
	return event
}

// TrackingUpdatedEvent builds a TrackingUpdated event
func (f *EventFactory) TrackingUpdatedEvent(ctx context.Context, data TrackingUpdatedData) *ShippingCloudEvent {
	event := f.CreateEvent(ctx, TrackingUpdated, "shipment/"+data.TrackingNumber, data)
	event.Carrier = data.Carrier
	return event
}
