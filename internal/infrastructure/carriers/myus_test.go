package carriers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

func TestMyUSClient_GetRates(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /v1/rates": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"rates":[{"service_code":"ECONOMY","service_name":"MyUS Economy","amount":"22.50","currency":"usd","transit_days":6}]}`)
		},
	})
	client := NewMyUSClient(testConfig(server.URL), Deps{})

	rates, err := client.GetRates(context.Background(), createTestRequest())

	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, domain.CarrierMyUS, rates[0].Carrier)
	assert.Equal(t, "22.5", rates[0].Price.String())
	assert.Equal(t, 6, rates[0].TransitDays)

	call := server.calls(http.MethodPost, "/v1/rates")[0]
	assert.Equal(t, "Bearer api-key", call.Header.Get("Authorization"))
	to := call.Body["to"].(map[string]any)
	assert.Equal(t, "SW1A 2AA", to["postal_code"])
}

func TestMyUSClient_EndpointOverrides(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /api/v2/track/MY123": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"tracking_number":"MY123","status":"in_transit","status_description":"Departed Miami hub",
				"events":[{"timestamp":"2026-03-02T10:00:00Z","status":"in_transit","description":"Departed Miami hub","location":"Miami, FL"}]}`)
		},
	})
	cfg := testConfig(server.URL)
	cfg.Endpoints = map[string]string{"tracking": "/api/v2/track/{tracking_number}"}
	client := NewMyUSClient(cfg, Deps{})

	resp := client.Track(context.Background(), "MY123")

	assert.Equal(t, domain.TrackingStatusInTransit, resp.Status)
	assert.Equal(t, "Departed Miami hub", resp.Description)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Miami, FL", resp.Events[0].Location)
}

func TestMyUSClient_MissingAPIKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = ""
	cfg.ClientSecret = ""
	client := NewMyUSClient(cfg, Deps{})

	_, err := client.GetRates(context.Background(), createTestRequest())

	assert.True(t, domain.IsAuthError(err))
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestMyUSClient_CreateShipmentAndLabel(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /v1/shipments": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, `{"tracking_number":"MY123","shipment_id":"shp_1","label_url":"https://labels.example.com/MY123.pdf"}`)
		},
		"GET /v1/shipments/MY123/label": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"label_data":"XlhB","label_format":"zpl"}`)
		},
	})
	client := NewMyUSClient(testConfig(server.URL), Deps{})

	resp, err := client.CreateShipment(context.Background(), createTestRequest().WithService("ECONOMY"))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "shp_1", resp.ShipmentID)
	require.NotNil(t, resp.Label)
	assert.Equal(t, domain.LabelFormatPDF, resp.Label.Format)

	body := server.calls(http.MethodPost, "/v1/shipments")[0].Body
	assert.Equal(t, "ECONOMY", body["service"])
	assert.Equal(t, "PDF", body["label_format"])

	label := client.GetLabel(context.Background(), "MY123")
	assert.True(t, label.Success)
	assert.Equal(t, domain.LabelFormatZPL, label.Label.Format)
}

func TestMyUSClient_CancelShipment(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"DELETE /v1/shipments/MY123": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	client := NewMyUSClient(testConfig(server.URL), Deps{})

	assert.True(t, client.CancelShipment(context.Background(), "MY123"))
	assert.False(t, client.CancelShipment(context.Background(), "UNKNOWN"))
}
