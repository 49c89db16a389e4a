package carriers

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

func TestDHLClient_GetRates(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /rates": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"products":[
				{"productName":"EXPRESS WORLDWIDE","productCode":"P",
				 "totalPrice":[{"currencyType":"BILLC","priceCurrency":"USD","price":84.15},{"currencyType":"PULCL","priceCurrency":"EUR","price":77.9}],
				 "deliveryCapabilities":{"estimatedDeliveryDateAndTime":"2026-03-05T23:59:00","totalTransitDays":"3"}},
				{"productCode":"K","totalPrice":[{"currencyType":"BILLC","priceCurrency":"USD","price":0}]}
			]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	rates, err := client.GetRates(context.Background(), createTestRequest())

	require.NoError(t, err)
	require.Len(t, rates, 1, "products without a positive price are skipped")
	assert.Equal(t, "P", rates[0].ServiceCode)
	assert.Equal(t, "EXPRESS WORLDWIDE", rates[0].ServiceName)
	assert.True(t, decimal.RequireFromString("84.15").Equal(rates[0].Price))
	assert.Equal(t, 3, rates[0].TransitDays)
	require.NotNil(t, rates[0].EstimatedDelivery)

	call := server.calls(http.MethodPost, "/rates")[0]
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("api-key:client-secret"))
	assert.Equal(t, expected, call.Header.Get("Authorization"))
	assert.Equal(t, "metric", call.Body["unitOfMeasurement"])
	assert.Equal(t, true, call.Body["isCustomsDeclarable"])
}

func TestDHLClient_MissingCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.ClientSecret = ""
	client := NewDHLClient(cfg, Deps{})

	ok, err := client.Authenticate(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
	assert.False(t, client.IsAuthenticated())
}

func TestDHLClient_CreateShipmentWithCommercialInvoice(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /shipments": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, `{"shipmentTrackingNumber":1234567890,"documents":[
				{"typeCode":"label","imageFormat":"PDF","content":"JVBERi0="},
				{"typeCode":"invoice","imageFormat":"PDF","content":"SU5WT0lDRQ=="}
			]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	req := createTestRequest().WithService("P")
	req.Reference = "ORD-2002"
	contents := []domain.PackageContents{
		{Description: "Cotton shirts", Quantity: 2, UnitValue: decimal.NewFromInt(30), Weight: 0.5, WeightUnit: domain.WeightUnitKG, HSCode: "6205.20"},
		{Description: "Leather belt", Quantity: 1, UnitValue: decimal.NewFromInt(60), Weight: 1, WeightUnit: domain.WeightUnitLB},
	}
	resp, err := client.CreateShipment(context.Background(), req, contents...)

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "1234567890", resp.TrackingNumber)
	require.NotNil(t, resp.Label)
	assert.Equal(t, "JVBERi0=", resp.Label.Data)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "invoice", resp.Documents[0].Type)

	body := server.calls(http.MethodPost, "/shipments")[0].Body
	assert.Equal(t, "P", body["productCode"])
	content := body["content"].(map[string]any)
	assert.Equal(t, "Cotton shirts", content["description"])
	declaration := content["exportDeclaration"].(map[string]any)
	lines := declaration["lineItems"].([]any)
	require.Len(t, lines, 2)
	first := lines[0].(map[string]any)
	assert.Equal(t, float64(1), first["number"])
	assert.Equal(t, "US", first["manufacturerCountry"])
	invoice := declaration["invoice"].(map[string]any)
	assert.Equal(t, "ORD-2002", invoice["number"])
}

func TestDHLClient_CreateShipmentDomesticHasNoDeclaration(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /shipments": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, `{"shipmentTrackingNumber":"5566778899","documents":[]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	req := createTestRequest()
	req.Recipient.Country = "US"
	req.Recipient.PostalCode = "10001"
	req.Recipient.City = "New York"
	req.Recipient.State = "NY"
	resp, err := client.CreateShipment(context.Background(), req, domain.PackageContents{Description: "Book", Quantity: 1, Weight: 1})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Label)

	content := server.calls(http.MethodPost, "/shipments")[0].Body["content"].(map[string]any)
	assert.NotContains(t, content, "exportDeclaration")
	assert.Equal(t, false, content["isCustomsDeclarable"])
}

func TestDHLClient_CreateShipmentRejected(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /shipments": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"title":"Bad request","detail":"Multiple problems found, see Additional Details","status":"400",
				"additionalDetails":[{"field":"postalCode","invalidValue":"SW1A","message":"Invalid postal code"},"receiver phone is missing"]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	resp, err := client.CreateShipment(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "postalCode: Invalid postal code")
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "postalCode", resp.Errors[0].Field)
	assert.Equal(t, "SW1A", resp.Errors[0].Value)
	assert.Equal(t, "general", resp.Errors[1].Field)
}

func TestDHLClient_CreateShipmentInvalidRequest(t *testing.T) {
	server := newFakeCarrier(t, nil)
	client := NewDHLClient(testConfig(server.URL), Deps{})

	req := createTestRequest()
	req.Packages = nil
	resp, err := client.CreateShipment(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, server.calls(http.MethodPost, "/shipments"), "invalid requests never reach the carrier")
}

func TestDHLClient_GetLabel(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /shipments/1234567890/get-image": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "label", r.URL.Query().Get("typeCode"))
			assert.Equal(t, "740561073", r.URL.Query().Get("shipperAccountNumber"))
			writeJSON(w, http.StatusOK, `{"documents":[{"typeCode":"label","imageFormat":"pdf","content":"JVBERi0="}]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	resp := client.GetLabel(context.Background(), "1234567890")

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Label)
	assert.Equal(t, domain.LabelFormatPDF, resp.Label.Format)
}

func TestDHLClient_GetLabelMissing(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /shipments/1234567890/get-image": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"title":"Not found","detail":"shipment not found"}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	resp := client.GetLabel(context.Background(), "1234567890")

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Label)
}

func TestDHLClient_Track(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /shipments/1234567890/tracking": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"shipments":[{"shipmentTrackingNumber":1234567890,
				"status":{"statusCode":"delivered","description":"Delivered"},
				"events":[
					{"date":"2026-03-02","time":"09:10:00","typeCode":"PU","description":"Shipment picked up","serviceArea":[{"code":"MIA","description":"Miami-US"}]},
					{"date":"2026-03-04","time":"13:45:00","typeCode":"OK","description":"Delivered","serviceArea":[{"code":"LON","description":"London-GB"}]}
				]}]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	resp := client.Track(context.Background(), "1234567890")

	assert.Equal(t, domain.TrackingStatusDelivered, resp.Status)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "London-GB", resp.Events[0].Location)
	require.NotNil(t, resp.DeliveredAt)
	assert.Equal(t, 13, resp.DeliveredAt.Hour())
}

func TestDHLClient_TrackEmpty(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /shipments/1234567890/tracking": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"shipments":[]}`)
		},
	})
	client := NewDHLClient(testConfig(server.URL), Deps{})

	resp := client.Track(context.Background(), "1234567890")

	assert.Equal(t, domain.TrackingStatusUnknown, resp.Status)
	assert.NotNil(t, resp.Events)
}

func TestDHLClient_CancelAndValidateAreUnsupported(t *testing.T) {
	server := newFakeCarrier(t, nil)
	client := NewDHLClient(testConfig(server.URL), Deps{})
	address := createTestRequest().Recipient

	assert.False(t, client.CancelShipment(context.Background(), "1234567890"))
	assert.Equal(t, address, client.ValidateAddress(context.Background(), address))
	assert.Empty(t, server.requests)
}
