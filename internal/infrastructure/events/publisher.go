package events

import (
	"context"
	"time"

	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
	"github.com/usama216/shipping-market-sub004/pkg/kafka"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
)

// EventProducer is the part of *kafka.Producer the publisher uses
type EventProducer interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.ShippingCloudEvent) error
}

// KafkaPublisher publishes shipping events as CloudEvents to Kafka
type KafkaPublisher struct {
	producer EventProducer
	factory  *cloudevents.EventFactory
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewKafkaPublisher creates a publisher on top of a producer
func NewKafkaPublisher(producer EventProducer, factory *cloudevents.EventFactory, logger *logging.Logger, m *metrics.Metrics) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		factory:  factory,
		logger:   logger.WithComponent("event-publisher"),
		metrics:  m,
	}
}

// PublishShipmentSubmitted announces a booked shipment
func (p *KafkaPublisher) PublishShipmentSubmitted(ctx context.Context, data cloudevents.ShipmentSubmittedData) error {
	return p.publish(ctx, kafka.Topics.ShipmentEvents, p.factory.ShipmentSubmittedEvent(ctx, data))
}

// PublishShipmentFailed announces a failed submission
func (p *KafkaPublisher) PublishShipmentFailed(ctx context.Context, data cloudevents.ShipmentFailedData) error {
	return p.publish(ctx, kafka.Topics.ShipmentEvents, p.factory.ShipmentFailedEvent(ctx, data))
}

// PublishShipmentCancelled announces a cancelled shipment
func (p *KafkaPublisher) PublishShipmentCancelled(ctx context.Context, data cloudevents.ShipmentCancelledData) error {
	return p.publish(ctx, kafka.Topics.ShipmentEvents, p.factory.ShipmentCancelledEvent(ctx, data))
}

// PublishTrackingUpdated announces a normalized tracking status
func (p *KafkaPublisher) PublishTrackingUpdated(ctx context.Context, data cloudevents.TrackingUpdatedData) error {
	return p.publish(ctx, kafka.Topics.TrackingEvents, p.factory.TrackingUpdatedEvent(ctx, data))
}

func (p *KafkaPublisher) publish(ctx context.Context, topic string, event *cloudevents.ShippingCloudEvent) error {
	start := time.Now()
	err := p.producer.PublishEvent(ctx, topic, event)
	p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, time.Since(start))
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil)
	return err
}

// LogPublisher writes events to the log instead of a broker
type LogPublisher struct {
	factory *cloudevents.EventFactory
	logger  *logging.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(factory *cloudevents.EventFactory, logger *logging.Logger) *LogPublisher {
	return &LogPublisher{factory: factory, logger: logger.WithComponent("event-publisher")}
}

// PublishShipmentSubmitted logs the event
func (p *LogPublisher) PublishShipmentSubmitted(ctx context.Context, data cloudevents.ShipmentSubmittedData) error {
	return p.log(ctx, p.factory.ShipmentSubmittedEvent(ctx, data))
}

// PublishShipmentFailed logs the event
func (p *LogPublisher) PublishShipmentFailed(ctx context.Context, data cloudevents.ShipmentFailedData) error {
	return p.log(ctx, p.factory.ShipmentFailedEvent(ctx, data))
}

// PublishShipmentCancelled logs the event
func (p *LogPublisher) PublishShipmentCancelled(ctx context.Context, data cloudevents.ShipmentCancelledData) error {
	return p.log(ctx, p.factory.ShipmentCancelledEvent(ctx, data))
}

// PublishTrackingUpdated logs the event
func (p *LogPublisher) PublishTrackingUpdated(ctx context.Context, data cloudevents.TrackingUpdatedData) error {
	return p.log(ctx, p.factory.TrackingUpdatedEvent(ctx, data))
}

func (p *LogPublisher) log(ctx context.Context, event *cloudevents.ShippingCloudEvent) error {
	p.logger.Event(ctx, event.Type, map[string]any{
		"id":      event.ID,
		"subject": event.Subject,
		"carrier": event.Carrier,
		"data":    event.Data,
	})
	return nil
}
