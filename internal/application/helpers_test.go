package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
)

// Test fixtures
func createTestRequest() domain.ShipmentRequest {
	return domain.NewShipmentRequest(
		domain.Address{
			Name:       "Warehouse A",
			Street1:    "8600 NW 17th St",
			City:       "Doral",
			State:      "FL",
			PostalCode: "33126",
			Country:    "US",
		},
		domain.Address{
			Name:       "Jane Doe",
			Street1:    "10 Downing St",
			City:       "London",
			PostalCode: "SW1A 2AA",
			Country:    "GB",
		},
		[]domain.Package{{
			Weight:        4.5,
			WeightUnit:    domain.WeightUnitLB,
			Length:        12,
			Width:         10,
			Height:        6,
			DimensionUnit: domain.DimensionUnitIN,
			DeclaredValue: decimal.NewFromInt(120),
		}},
		"",
	)
}

func quote(carrier, service, price string, transitDays int) domain.RateResponse {
	return domain.RateResponse{
		Carrier:     carrier,
		ServiceCode: service,
		ServiceName: service,
		Price:       decimal.RequireFromString(price),
		Currency:    "USD",
		TransitDays: transitDays,
	}
}

// stubCarrier is a domain.Carrier whose behaviour is set per test
type stubCarrier struct {
	name string

	authOK  bool
	authErr error

	rates    []domain.RateResponse
	ratesErr error
	// block makes GetRates wait for ctx cancellation
	block bool

	shipResp *domain.ShipmentResponse
	shipErr  error
	label    *domain.LabelResponse
	tracking *domain.TrackingResponse
	cancelOK bool

	rateCalls atomic.Int32
	shipCalls atomic.Int32

	mu       sync.Mutex
	lastShip domain.ShipmentRequest
	contents []domain.PackageContents
}

func newStubCarrier(name string) *stubCarrier {
	return &stubCarrier{name: name, authOK: true}
}

func (s *stubCarrier) Name() string { return s.name }

func (s *stubCarrier) Authenticate(context.Context) (bool, error) {
	return s.authOK, s.authErr
}

func (s *stubCarrier) IsAuthenticated() bool { return s.authOK }

func (s *stubCarrier) GetRates(ctx context.Context, _ domain.ShipmentRequest) ([]domain.RateResponse, error) {
	s.rateCalls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.rates, s.ratesErr
}

func (s *stubCarrier) CreateShipment(_ context.Context, req domain.ShipmentRequest, contents ...domain.PackageContents) (*domain.ShipmentResponse, error) {
	s.shipCalls.Add(1)
	s.mu.Lock()
	s.lastShip = req
	s.contents = contents
	s.mu.Unlock()
	return s.shipResp, s.shipErr
}

func (s *stubCarrier) GetLabel(_ context.Context, trackingNumber string) *domain.LabelResponse {
	if s.label != nil {
		return s.label
	}
	return domain.LabelNotFound(s.name, trackingNumber, "")
}

func (s *stubCarrier) Track(_ context.Context, trackingNumber string) *domain.TrackingResponse {
	if s.tracking != nil {
		return s.tracking
	}
	return domain.UnknownTracking(s.name, trackingNumber, "not found")
}

func (s *stubCarrier) CancelShipment(context.Context, string) bool { return s.cancelOK }

func (s *stubCarrier) ValidateAddress(_ context.Context, a domain.Address) domain.Address { return a }

// MockEventPublisher is a testify mock of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishShipmentSubmitted(ctx context.Context, data cloudevents.ShipmentSubmittedData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockEventPublisher) PublishShipmentFailed(ctx context.Context, data cloudevents.ShipmentFailedData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockEventPublisher) PublishShipmentCancelled(ctx context.Context, data cloudevents.ShipmentCancelledData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockEventPublisher) PublishTrackingUpdated(ctx context.Context, data cloudevents.TrackingUpdatedData) error {
	return m.Called(ctx, data).Error(0)
}

// MockShipmentRecorder is a testify mock of domain.ShipmentRecorder
type MockShipmentRecorder struct {
	mock.Mock
}

func (m *MockShipmentRecorder) RecordShipment(ctx context.Context, record domain.ShipmentRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockShipmentRecorder) RecordLabel(ctx context.Context, carrier, trackingNumber string, label domain.Label) error {
	return m.Called(ctx, carrier, trackingNumber, label).Error(0)
}

// failingCache errors on every call
type failingCache struct{ err error }

func (f failingCache) Get(context.Context, string) (*domain.RateResponse, bool, error) {
	return nil, false, f.err
}

func (f failingCache) Set(context.Context, string, domain.RateResponse, time.Duration) error {
	return f.err
}

func (f failingCache) Forget(context.Context, string) error { return f.err }
