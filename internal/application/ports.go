package application

import (
	"context"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
)

// CarrierLookup resolves carrier clients by name
type CarrierLookup interface {
	Get(name string) (domain.Carrier, error)
	Names() []string
}

// EventPublisher announces shipment and tracking changes
type EventPublisher interface {
	PublishShipmentSubmitted(ctx context.Context, data cloudevents.ShipmentSubmittedData) error
	PublishShipmentFailed(ctx context.Context, data cloudevents.ShipmentFailedData) error
	PublishShipmentCancelled(ctx context.Context, data cloudevents.ShipmentCancelledData) error
	PublishTrackingUpdated(ctx context.Context, data cloudevents.TrackingUpdatedData) error
}
