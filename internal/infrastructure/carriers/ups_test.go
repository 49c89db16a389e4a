package carriers

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

func upsRoutes(routes map[string]http.HandlerFunc) map[string]http.HandlerFunc {
	routes["POST /security/v1/oauth/token"] = tokenHandler("14399")
	return routes
}

func TestUPSClient_GetRatesSingleObject(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"POST /api/rating/v2403/Shop": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"RateResponse":{"RatedShipment":{
				"Service":{"Code":"65"},
				"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"98.40"},
				"NegotiatedRateCharges":{"TotalCharge":{"CurrencyCode":"USD","MonetaryValue":"71.02"}},
				"GuaranteedDelivery":{"BusinessDaysInTransit":"2"}}}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	rates, err := client.GetRates(context.Background(), createTestRequest())

	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "UPS Worldwide Saver", rates[0].ServiceName)
	assert.Equal(t, "71.02", rates[0].Price.StringFixed(2))
	assert.Equal(t, 2, rates[0].TransitDays)

	call := server.calls(http.MethodPost, "/api/rating/v2403/Shop")[0]
	assert.NotEmpty(t, call.Header.Get("transId"))
	assert.Equal(t, "Bearer test-token", call.Header.Get("Authorization"))

	token := server.calls(http.MethodPost, "/security/v1/oauth/token")[0]
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret"))
	assert.Equal(t, expected, token.Header.Get("Authorization"))
	assert.Equal(t, "740561073", token.Header.Get("x-merchant-id"))
}

func TestUPSClient_GetRatesList(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"POST /api/rating/v2403/Shop": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"RateResponse":{"RatedShipment":[
				{"Service":{"Code":"07"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"120.00"}},
				{"Service":{"Code":"08"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"104.50"}}
			]}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	rates, err := client.GetRates(context.Background(), createTestRequest())

	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "07", rates[0].ServiceCode)
	assert.Equal(t, "104.5", rates[1].Price.String())
	assert.Zero(t, rates[1].TransitDays)
}

func TestUPSClient_CreateShipment(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"POST /api/shipments/v2403/ship": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"ShipmentResponse":{"ShipmentResults":{
				"ShipmentIdentificationNumber":"1ZXXXXXXXXXXXXXXXX",
				"PackageResults":{"TrackingNumber":"1Z12345E0205271688","ShippingLabel":{"ImageFormat":{"Code":"GIF"},"GraphicImage":"R0lGODlh"}}}}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	resp, err := client.CreateShipment(context.Background(), createTestRequest().WithService("65"))

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "1Z12345E0205271688", resp.TrackingNumber)
	assert.Equal(t, "1ZXXXXXXXXXXXXXXXX", resp.ShipmentID)
	require.NotNil(t, resp.Label)
	assert.Equal(t, domain.LabelFormat("GIF"), resp.Label.Format)
}

func TestUPSClient_CreateShipmentRejected(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"POST /api/shipments/v2403/ship": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"response":{"errors":[{"code":"120802","message":"Missing or invalid ship to postal code"}]}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	resp, err := client.CreateShipment(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "ship to postal code")
}

func TestUPSClient_TokenRejectedIsAuthError(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /security/v1/oauth/token": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, `{"response":{"errors":[{"code":"250002","message":"Invalid Authentication Information."}]}}`)
		},
	})
	client := NewUPSClient(testConfig(server.URL), Deps{})

	_, err := client.CreateShipment(context.Background(), createTestRequest())

	assert.True(t, domain.IsAuthError(err))
	assert.Empty(t, server.calls(http.MethodPost, "/api/shipments/v2403/ship"))
}

func TestUPSClient_GetLabel(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"POST /api/labels/v2403/recovery": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"LabelRecoveryResponse":{"LabelResults":{"TrackingNumber":"1Z12345E0205271688","LabelImage":{"LabelImageFormat":{"Code":"PNG"},"GraphicImage":"iVBORw0KGgo="}}}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	resp := client.GetLabel(context.Background(), "1Z12345E0205271688")

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Label)
	assert.Equal(t, domain.LabelFormatPNG, resp.Label.Format)
}

func TestUPSClient_Track(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"GET /api/track/v1/details/1Z12345E0205271688": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"trackResponse":{"shipment":[{"package":[{
				"trackingNumber":"1Z12345E0205271688",
				"deliveryDate":[{"type":"SDD","date":"20260306"}],
				"currentStatus":{"description":"On the Way","code":"005"},
				"activity":[
					{"location":{"address":{"city":"Louisville","stateProvince":"KY","countryCode":"US"}},"status":{"type":"I","description":"Departed from Facility","code":"DP"},"date":"20260303","time":"041500"},
					{"location":{"address":{"city":"Doral","stateProvince":"FL","countryCode":"US"}},"status":{"type":"P","description":"Pickup Scan","code":"PU"},"date":"20260302","time":"173000"}
				]}]}]}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	resp := client.Track(context.Background(), "1Z12345E0205271688")

	assert.Equal(t, domain.TrackingStatusInTransit, resp.Status)
	assert.Equal(t, "I", resp.RawStatus)
	assert.Equal(t, "On the Way", resp.Description)
	require.NotNil(t, resp.EstimatedDelivery)
	assert.Nil(t, resp.DeliveredAt)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "Louisville, KY, US", resp.Events[0].Location)
}

func TestUPSClient_TrackWarning(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"GET /api/track/v1/details/1Z0000": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"trackResponse":{"shipment":[{"warnings":[{"code":"TW0001","message":"Tracking Information Not Found"}]}]}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	resp := client.Track(context.Background(), "1Z0000")

	assert.Equal(t, domain.TrackingStatusUnknown, resp.Status)
	assert.Contains(t, resp.Description, "Not Found")
}

func TestUPSClient_CancelShipment(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"DELETE /api/shipments/v2403/void/cancel/1ZXXXXXXXXXXXXXXXX": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"VoidShipmentResponse":{"SummaryResult":{"Status":{"Code":"1","Description":"Success"}}}}`)
		},
		"DELETE /api/shipments/v2403/void/cancel/1ZNOPE": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"response":{"errors":[{"code":"190117","message":"Void period has expired"}]}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})

	assert.True(t, client.CancelShipment(context.Background(), "1ZXXXXXXXXXXXXXXXX"))
	assert.False(t, client.CancelShipment(context.Background(), "1ZNOPE"))
}

func TestUPSClient_ValidateAddress(t *testing.T) {
	server := newFakeCarrier(t, upsRoutes(map[string]http.HandlerFunc{
		"POST /api/addressvalidation/v2/1": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"XAVResponse":{"Candidate":{"AddressKeyFormat":{
				"AddressLine":"8600 NW 17TH ST","PoliticalDivision2":"DORAL","PoliticalDivision1":"FL",
				"PostcodePrimaryLow":"33126","PostcodeExtendedLow":"1032","CountryCode":"US"}}}}`)
		},
	}))
	client := NewUPSClient(testConfig(server.URL), Deps{})
	input := createTestRequest().Shipper

	got := client.ValidateAddress(context.Background(), input)

	assert.Equal(t, "8600 NW 17TH ST", got.Street1)
	assert.Equal(t, "DORAL", got.City)
	assert.Equal(t, "33126-1032", got.PostalCode)
	assert.Equal(t, input.Phone, got.Phone)
}
