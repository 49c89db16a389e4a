package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/internal/infrastructure/cache"
	"github.com/usama216/shipping-market-sub004/internal/infrastructure/carriers"
	"github.com/usama216/shipping-market-sub004/pkg/errors"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
)

// fakeCarrier is a domain.Carrier with canned answers
type fakeCarrier struct {
	name     string
	authOK   bool
	rates    []domain.RateResponse
	shipResp *domain.ShipmentResponse
	label    *domain.LabelResponse
	tracking *domain.TrackingResponse
	cancelOK bool
}

func (f *fakeCarrier) Name() string                               { return f.name }
func (f *fakeCarrier) Authenticate(context.Context) (bool, error) { return f.authOK, nil }
func (f *fakeCarrier) IsAuthenticated() bool                      { return f.authOK }

func (f *fakeCarrier) GetRates(context.Context, domain.ShipmentRequest) ([]domain.RateResponse, error) {
	return f.rates, nil
}

func (f *fakeCarrier) CreateShipment(context.Context, domain.ShipmentRequest, ...domain.PackageContents) (*domain.ShipmentResponse, error) {
	return f.shipResp, nil
}

func (f *fakeCarrier) GetLabel(_ context.Context, trackingNumber string) *domain.LabelResponse {
	if f.label != nil {
		return f.label
	}
	return domain.LabelNotFound(f.name, trackingNumber, "")
}

func (f *fakeCarrier) Track(_ context.Context, trackingNumber string) *domain.TrackingResponse {
	if f.tracking != nil {
		return f.tracking
	}
	return domain.UnknownTracking(f.name, trackingNumber, "no tracking information")
}

func (f *fakeCarrier) CancelShipment(context.Context, string) bool { return f.cancelOK }

func (f *fakeCarrier) ValidateAddress(_ context.Context, a domain.Address) domain.Address {
	a.City = "LONDON"
	return a
}

func createTestRequest() domain.ShipmentRequest {
	return domain.NewShipmentRequest(
		domain.Address{Name: "Warehouse A", Street1: "8600 NW 17th St", City: "Doral", State: "FL", PostalCode: "33126", Country: "US"},
		domain.Address{Name: "Jane Doe", Street1: "10 Downing St", City: "London", PostalCode: "SW1A 2AA", Country: "GB"},
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

func rate(carrier, service, price string, transit int) domain.RateResponse {
	return domain.RateResponse{
		Carrier:     carrier,
		ServiceCode: service,
		Price:       decimal.RequireFromString(price),
		Currency:    "USD",
		TransitDays: transit,
	}
}

func setupRouter(registered ...domain.Carrier) *gin.Engine {
	gin.SetMode(gin.TestMode)

	registry := carriers.NewRegistry(registered...)
	logger := logging.NewNop()
	options := map[string]application.OptionMapping{
		"fedex_priority": {Carrier: "fedex", Service: "FEDEX_INTERNATIONAL_PRIORITY"},
		"dhl_express":    {Carrier: "dhl", Service: "P"},
	}

	svc := Services{
		Rates:       application.NewRateShopper(registry, options, cache.NewMemoryRateCache(), nil, application.DefaultRateShoppingConfig(), logger, nil),
		Submissions: application.NewSubmissionCoordinator(registry, nil, nil, nil, logger, nil),
		Tracking:    application.NewTrackingAggregator(registry, nil, 4, logger, nil),
		Carriers:    registry,
		Breakers:    resilience.NewCircuitBreakerRegistry(logger),
	}

	router := gin.New()
	RegisterRoutes(router, svc, logger)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestShopRates_RanksCheapestFirst(t *testing.T) {
	fedex := &fakeCarrier{name: "fedex", authOK: true, rates: []domain.RateResponse{rate("fedex", "FEDEX_INTERNATIONAL_PRIORITY", "61.40", 3)}}
	dhl := &fakeCarrier{name: "dhl", authOK: true, rates: []domain.RateResponse{rate("dhl", "P", "52.10", 2)}}
	router := setupRouter(fedex, dhl)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rates", ShopRatesRequest{Request: createTestRequest()})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp RatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "dhl", resp.Results[0].Carrier)
	assert.Equal(t, "dhl_express", resp.Results[0].OptionID)
	assert.Equal(t, domain.RateSourceAPI, resp.Results[0].Source)
	require.NotNil(t, resp.Best)
	assert.True(t, resp.Best.Price.Equal(decimal.RequireFromString("52.10")))
}

func TestShopRates_NoRatesAvailable(t *testing.T) {
	fedex := &fakeCarrier{name: "fedex", authOK: false}
	router := setupRouter(fedex)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rates", ShopRatesRequest{
		Request: createTestRequest(),
		Options: []string{"fedex_priority"},
	})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp NoRatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.CodeNoRatesAvailable, resp.Code)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "fedex", resp.Results[0].Carrier)
	assert.Nil(t, resp.Results[0].Price)
	assert.NotEmpty(t, resp.Results[0].Error)
}

func TestShopRates_InvalidRequest(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "fedex", authOK: true})

	req := createTestRequest()
	req.Packages = nil
	w := doJSON(t, router, http.MethodPost, "/api/v1/rates", ShopRatesRequest{Request: req})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.CodeValidationError, body["code"])
	assert.NotEmpty(t, body["errors"])
}

func TestShopRates_MalformedBody(t *testing.T) {
	router := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rates", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateShipment_Success(t *testing.T) {
	dhl := &fakeCarrier{
		name:     "dhl",
		authOK:   true,
		shipResp: domain.ShipmentSucceeded("dhl", "JD014600003828", "SHP1", &domain.Label{URL: "https://labels.example/JD014600003828.pdf"}, nil),
	}
	router := setupRouter(dhl)

	w := doJSON(t, router, http.MethodPost, "/api/v1/shipments", CreateShipmentRequest{
		SubmissionID: "sub-1",
		Request:      createTestRequest(),
		Carrier:      "dhl",
		Service:      "P",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub application.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, application.SubmissionSubmitted, sub.State)
	require.NotNil(t, sub.Response)
	assert.Equal(t, "JD014600003828", sub.Response.TrackingNumber)
}

func TestCreateShipment_CarrierRejection(t *testing.T) {
	dhl := &fakeCarrier{
		name:   "dhl",
		authOK: true,
		shipResp: domain.ShipmentFailed("dhl", "Invalid postal code", []domain.ErrorDetail{
			{Field: "recipient.postalCode", Message: "invalid postal code"},
		}, nil),
	}
	router := setupRouter(dhl)

	w := doJSON(t, router, http.MethodPost, "/api/v1/shipments", CreateShipmentRequest{
		Request: createTestRequest(),
		Carrier: "dhl",
		Service: "P",
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var sub application.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, application.SubmissionFailed, sub.State)
	require.NotNil(t, sub.Response)
	require.Len(t, sub.Response.Errors, 1)
	assert.Equal(t, "recipient.postalCode", sub.Response.Errors[0].Field)
}

func TestCreateShipment_InvalidCarrierCode(t *testing.T) {
	router := setupRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/shipments", CreateShipmentRequest{
		Request: createTestRequest(),
		Carrier: "canadapost",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "carrier")
}

func TestCreateShipment_CarrierNotRegistered(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "dhl", authOK: true})

	w := doJSON(t, router, http.MethodPost, "/api/v1/shipments", CreateShipmentRequest{
		Request: createTestRequest(),
		Carrier: "ups",
	})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeNotFound)
	assert.Contains(t, w.Body.String(), "carrier ups not found")
}

func TestTrackShipment(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "ups", authOK: true})

	w := doJSON(t, router, http.MethodGet, "/api/v1/carriers/ups/tracking/1Z999AA10123456784", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp domain.TrackingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.TrackingStatusUnknown, resp.Status)
	assert.Equal(t, "1Z999AA10123456784", resp.TrackingNumber)
}

func TestTrackShipment_InvalidTrackingNumber(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "ups", authOK: true})

	w := doJSON(t, router, http.MethodGet, "/api/v1/carriers/ups/tracking/1Z-9", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackBatch(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "ups", authOK: true}, &fakeCarrier{name: "fedex", authOK: true})

	w := doJSON(t, router, http.MethodPost, "/api/v1/tracking/batch", BatchTrackingRequest{
		Shipments: []BatchTrackingItem{
			{Carrier: "fedex", TrackingNumber: "794600000001"},
			{Carrier: "ups", TrackingNumber: "1Z999AA10123456784"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Results []domain.TrackingResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "794600000001", resp.Results[0].TrackingNumber)
	assert.Equal(t, "1Z999AA10123456784", resp.Results[1].TrackingNumber)
}

func TestTrackBatch_Empty(t *testing.T) {
	router := setupRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/tracking/batch", BatchTrackingRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLabel(t *testing.T) {
	dhl := &fakeCarrier{
		name:   "dhl",
		authOK: true,
		label:  domain.LabelFound("dhl", "JD014600003828", &domain.Label{Data: "JVBERi0=", Format: domain.LabelFormatPDF}),
	}
	router := setupRouter(dhl, &fakeCarrier{name: "fedex", authOK: true})

	w := doJSON(t, router, http.MethodGet, "/api/v1/carriers/dhl/labels/JD014600003828", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "JVBERi0=")

	w = doJSON(t, router, http.MethodGet, "/api/v1/carriers/fedex/labels/794600000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelShipment(t *testing.T) {
	router := setupRouter(
		&fakeCarrier{name: "ups", authOK: true, cancelOK: true},
		&fakeCarrier{name: "dhl", authOK: true},
	)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/carriers/ups/shipments/1Z999AA10123456784", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/carriers/dhl/shipments/JD014600003828", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":false`)
}

func TestValidateAddress(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "ups", authOK: true})

	w := doJSON(t, router, http.MethodPost, "/api/v1/carriers/ups/addresses/validate", domain.Address{
		Street1: "10 Downing St", City: "London", PostalCode: "SW1A 2AA", Country: "GB",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "LONDON")

	w = doJSON(t, router, http.MethodPost, "/api/v1/carriers/ups/addresses/validate", domain.Address{City: "London"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/carriers/dhl/addresses/validate", domain.Address{Country: "GB"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCarriers(t *testing.T) {
	router := setupRouter(&fakeCarrier{name: "ups", authOK: true}, &fakeCarrier{name: "dhl"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/carriers", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Carriers []CarrierStatus `json:"carriers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Carriers, 2)
	assert.Equal(t, "dhl", resp.Carriers[0].Name)
	assert.False(t, resp.Carriers[0].Authenticated)
	assert.True(t, resp.Carriers[1].Authenticated)
}
