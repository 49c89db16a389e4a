package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
	"github.com/usama216/shipping-market-sub004/pkg/kafka"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

type publishedEvent struct {
	topic string
	event *cloudevents.ShippingCloudEvent
}

type recordingProducer struct {
	events []publishedEvent
	err    error
}

func (p *recordingProducer) PublishEvent(_ context.Context, topic string, event *cloudevents.ShippingCloudEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
	return nil
}

func newTestPublisher(producer EventProducer) *KafkaPublisher {
	return NewKafkaPublisher(producer, cloudevents.NewEventFactory(cloudevents.SourceShipping), logging.NewNop(), nil)
}

func TestKafkaPublisher_RoutesEventsToTopics(t *testing.T) {
	ctx := context.Background()
	producer := &recordingProducer{}
	publisher := newTestPublisher(producer)

	require.NoError(t, publisher.PublishShipmentSubmitted(ctx, cloudevents.ShipmentSubmittedData{SubmissionID: "sub-1", Carrier: "dhl", TrackingNumber: "123"}))
	require.NoError(t, publisher.PublishShipmentFailed(ctx, cloudevents.ShipmentFailedData{SubmissionID: "sub-2", Carrier: "ups", Reason: "invalid postal code"}))
	require.NoError(t, publisher.PublishShipmentCancelled(ctx, cloudevents.ShipmentCancelledData{Carrier: "fedex", TrackingNumber: "794"}))
	require.NoError(t, publisher.PublishTrackingUpdated(ctx, cloudevents.TrackingUpdatedData{Carrier: "ups", TrackingNumber: "1Z", Status: "delivered"}))

	require.Len(t, producer.events, 4)
	assert.Equal(t, kafka.Topics.ShipmentEvents, producer.events[0].topic)
	assert.Equal(t, cloudevents.ShipmentSubmitted, producer.events[0].event.Type)
	assert.Equal(t, "shipment/123", producer.events[0].event.Subject)
	assert.Equal(t, "dhl", producer.events[0].event.Carrier)
	assert.Equal(t, cloudevents.ShipmentFailed, producer.events[1].event.Type)
	assert.Equal(t, cloudevents.ShipmentCancelled, producer.events[2].event.Type)
	assert.Equal(t, kafka.Topics.TrackingEvents, producer.events[3].topic)
	assert.Equal(t, cloudevents.TrackingUpdated, producer.events[3].event.Type)
}

func TestKafkaPublisher_ReturnsProducerErrors(t *testing.T) {
	brokerDown := errors.New("dial tcp: connection refused")
	publisher := newTestPublisher(&recordingProducer{err: brokerDown})

	err := publisher.PublishTrackingUpdated(context.Background(), cloudevents.TrackingUpdatedData{Carrier: "dhl", TrackingNumber: "1"})

	assert.ErrorIs(t, err, brokerDown)
}

func TestLogPublisher_NeverFails(t *testing.T) {
	publisher := NewLogPublisher(cloudevents.NewEventFactory(cloudevents.SourceShipping), logging.NewNop())

	assert.NoError(t, publisher.PublishShipmentSubmitted(context.Background(), cloudevents.ShipmentSubmittedData{Carrier: "myus", TrackingNumber: "MY1"}))
	assert.NoError(t, publisher.PublishTrackingUpdated(context.Background(), cloudevents.TrackingUpdatedData{Carrier: "myus", TrackingNumber: "MY1"}))
}

var _ EventProducer = (*kafka.Producer)(nil)
