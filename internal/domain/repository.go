package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateCache is the short-lived advisory price cache. Writes are last
// write wins.
type RateCache interface {
	Get(ctx context.Context, key string) (*RateResponse, bool, error)
	Set(ctx context.Context, key string, rate RateResponse, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// FallbackPrice is a stored price used when a live rate call fails
type FallbackPrice struct {
	Carrier     string          `json:"carrier"`
	ServiceCode string          `json:"serviceCode"`
	ServiceName string          `json:"serviceName,omitempty"`
	Base        decimal.Decimal `json:"base"`
	PerLB       decimal.Decimal `json:"perLb"`
	Currency    string          `json:"currency"`
}

// PriceFor prices a request as base + perLb * ceil(total weight in lb)
func (f FallbackPrice) PriceFor(req ShipmentRequest) decimal.Decimal {
	lbs := decimal.NewFromInt(int64(CeilBucket(req.TotalWeightLB(), 1)))
	return f.Base.Add(f.PerLB.Mul(lbs)).Round(2)
}

// FallbackPriceSource looks up stored fallback prices. ok is false when
// no price exists for the carrier and service.
type FallbackPriceSource interface {
	FallbackPrice(ctx context.Context, carrier, serviceCode string) (price FallbackPrice, ok bool, err error)
}

// ShipmentRecord is what persistence receives after a successful submission
type ShipmentRecord struct {
	SubmissionID   string
	Carrier        string
	ServiceCode    string
	TrackingNumber string
	CarrierID      string
	Label          *Label
	Documents      []Document
	Request        ShipmentRequest
	RawResponse    []byte
	SubmittedAt    time.Time
}

// ShipmentRecorder hands carrier results to persistence verbatim
type ShipmentRecorder interface {
	RecordShipment(ctx context.Context, record ShipmentRecord) error
	RecordLabel(ctx context.Context, carrier, trackingNumber string, label Label) error
}
