package carriers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

// Test fixtures
func createTestRequest() domain.ShipmentRequest {
	return domain.NewShipmentRequest(
		domain.Address{
			Name:       "Warehouse A",
			Company:    "Shipping Market",
			Street1:    "8600 NW 17th St",
			City:       "Doral",
			State:      "FL",
			PostalCode: "33126",
			Country:    "US",
			Phone:      "3055550100",
		},
		domain.Address{
			Name:       "Jane Doe",
			Street1:    "10 Downing St",
			City:       "London",
			PostalCode: "SW1A 2AA",
			Country:    "GB",
			Phone:      "+442070000000",
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

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := body.(string); ok {
		_, _ = io.WriteString(w, s)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// fakeCarrier is an httptest server recording the requests it received
type fakeCarrier struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
	Form   string
}

func newFakeCarrier(t *testing.T, routes map[string]http.HandlerFunc) *fakeCarrier {
	t.Helper()
	f := &fakeCarrier{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
		if json.Unmarshal(raw, &rec.Body) != nil {
			rec.Form = string(raw)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()

		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"message":"route not found"}`)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCarrier) calls(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func testConfig(baseURL string) Config {
	return Config{
		Enabled:       true,
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		APIKey:        "api-key",
		AccountNumber: "740561073",
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		MaxRetries:    1,
		RateLimit:     1000,
	}
}

func tokenHandler(expiresIn any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   expiresIn,
		})
	}
}
