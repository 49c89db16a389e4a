package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed whenever a carrier omits the currency
const DefaultCurrency = "USD"

// RateResponse is one quote returned by one successful carrier rate call
type RateResponse struct {
	Carrier           string          `json:"carrier"`
	ServiceCode       string          `json:"serviceCode"`
	ServiceName       string          `json:"serviceName,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Currency          string          `json:"currency"`
	TransitDays       int             `json:"transitDays,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
}

// RateSource is the provenance of a RateResult price
type RateSource string

const (
	RateSourceAPI      RateSource = "api"
	RateSourceCache    RateSource = "cache"
	RateSourceDatabase RateSource = "database"
)

// RateResult is a price with provenance, as returned by rate shopping
type RateResult struct {
	OptionID          string           `json:"optionId,omitempty"`
	Carrier           string           `json:"carrier"`
	ServiceCode       string           `json:"serviceCode,omitempty"`
	ServiceName       string           `json:"serviceName,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	TransitDays       int              `json:"transitDays,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimatedDelivery,omitempty"`
	Source            RateSource       `json:"source"`
	Error             string           `json:"error,omitempty"`
	Best              bool             `json:"best"`
}

func fromResponse(r RateResponse, source RateSource) RateResult {
	price := r.Price
	currency := r.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return RateResult{
		Carrier:           r.Carrier,
		ServiceCode:       r.ServiceCode,
		ServiceName:       r.ServiceName,
		Price:             &price,
		Currency:          currency,
		TransitDays:       r.TransitDays,
		EstimatedDelivery: r.EstimatedDelivery,
		Source:            source,
	}
}

// RateFromAPI wraps a live carrier quote
func RateFromAPI(r RateResponse) RateResult {
	return fromResponse(r, RateSourceAPI)
}

// RateFromCache wraps a quote served from the rate cache
func RateFromCache(r RateResponse) RateResult {
	return fromResponse(r, RateSourceCache)
}

// RateFromDatabase wraps a stored fallback price. cause explains why the
// live call was not used.
func RateFromDatabase(carrier, serviceCode, serviceName string, price decimal.Decimal, currency string, cause error) RateResult {
	result := fromResponse(RateResponse{
		Carrier:     carrier,
		ServiceCode: serviceCode,
		ServiceName: serviceName,
		Price:       price,
		Currency:    currency,
	}, RateSourceDatabase)
	if cause != nil {
		result.Error = cause.Error()
	}
	return result
}

// RateFailed records a carrier that produced no price at all. It carries
// database provenance so every non-live entry reads the same way to callers.
func RateFailed(carrier, serviceCode string, cause error) RateResult {
	result := RateResult{
		Carrier:     carrier,
		ServiceCode: serviceCode,
		Source:      RateSourceDatabase,
		Error:       "rate unavailable",
	}
	if cause != nil {
		result.Error = cause.Error()
	}
	return result
}

// IsLiveRate is true only for quotes fetched from the carrier just now
func (r RateResult) IsLiveRate() bool {
	return r.Source == RateSourceAPI
}

// HasPrice reports whether the result carries a usable price
func (r RateResult) HasPrice() bool {
	return r.Price != nil
}

// IsFailed reports whether no price could be produced
func (r RateResult) IsFailed() bool {
	return r.Price == nil
}

// Response converts the result back to a plain quote, for caching
func (r RateResult) Response() RateResponse {
	out := RateResponse{
		Carrier:           r.Carrier,
		ServiceCode:       r.ServiceCode,
		ServiceName:       r.ServiceName,
		Currency:          r.Currency,
		TransitDays:       r.TransitDays,
		EstimatedDelivery: r.EstimatedDelivery,
	}
	if r.Price != nil {
		out.Price = *r.Price
	}
	return out
}
