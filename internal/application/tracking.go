package application

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
)

// DefaultTrackingConcurrency bounds parallel polls in TrackMany
const DefaultTrackingConcurrency = 8

// TrackingAggregator polls carriers and returns normalized tracking states
type TrackingAggregator struct {
	carriers    CarrierLookup
	publisher   EventPublisher
	concurrency int
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewTrackingAggregator creates a TrackingAggregator. publisher may be nil.
func NewTrackingAggregator(carriers CarrierLookup, publisher EventPublisher, concurrency int, logger *logging.Logger, m *metrics.Metrics) *TrackingAggregator {
	if concurrency <= 0 {
		concurrency = DefaultTrackingConcurrency
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TrackingAggregator{
		carriers:    carriers,
		publisher:   publisher,
		concurrency: concurrency,
		logger:      logger.WithComponent("tracking-aggregator"),
		metrics:     m,
	}
}

// Track polls one shipment. It never fails; unknown carriers and carrier
// errors give status unknown with the reason in the description.
func (a *TrackingAggregator) Track(ctx context.Context, carrierName, trackingNumber string) *domain.TrackingResponse {
	carrierName = strings.ToLower(carrierName)
	carrier, err := a.carriers.Get(carrierName)
	if err != nil {
		a.logger.WithError(err).Warn("Tracking requested for unknown carrier", "carrier", carrierName)
		resp := domain.UnknownTracking(carrierName, trackingNumber, err.Error())
		a.metrics.RecordTrackingPoll(carrierName, string(resp.Status))
		return resp
	}

	resp := carrier.Track(ctx, trackingNumber)
	if resp == nil {
		resp = domain.UnknownTracking(carrierName, trackingNumber, "")
	}
	a.metrics.RecordTrackingPoll(carrierName, string(resp.Status))
	return resp
}

// TrackMany polls shipments concurrently. Results keep the order of queries.
// Every known status is announced as a tracking-updated event.
func (a *TrackingAggregator) TrackMany(ctx context.Context, queries []TrackingQuery) []*domain.TrackingResponse {
	results := make([]*domain.TrackingResponse, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = a.Track(gctx, q.Carrier, q.TrackingNumber)
			return nil
		})
	}
	_ = g.Wait()

	for _, resp := range results {
		if resp.Status == domain.TrackingStatusUnknown {
			continue
		}
		a.publish(ctx, resp)
	}

	a.logger.Info("Bulk tracking completed", "shipments", len(queries))
	return results
}

func (a *TrackingAggregator) publish(ctx context.Context, resp *domain.TrackingResponse) {
	if a.publisher == nil {
		return
	}
	data := cloudevents.TrackingUpdatedData{
		Carrier:        resp.Carrier,
		TrackingNumber: resp.TrackingNumber,
		Status:         string(resp.Status),
		RawStatus:      resp.RawStatus,
		Description:    resp.Description,
		DeliveredAt:    resp.DeliveredAt,
	}
	if err := a.publisher.PublishTrackingUpdated(ctx, data); err != nil {
		a.logger.WithError(err).Error("Failed to publish tracking update",
			"carrier", resp.Carrier,
			"trackingNumber", resp.TrackingNumber,
		)
	}
}
