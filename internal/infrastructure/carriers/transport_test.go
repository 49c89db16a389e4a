package carriers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
)

func TestTransport_RetriesIdempotentTransportErrors(t *testing.T) {
	attempts := 0
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /status": func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				writeJSON(w, http.StatusServiceUnavailable, `{"message":"busy"}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"ok":true}`)
		},
	})
	transport := NewTransport("fedex", server.URL, testConfig(server.URL), Deps{})

	var out struct {
		OK bool `json:"ok"`
	}
	_, err := transport.DoJSON(context.Background(), Request{Operation: "status", Path: "/status", Idempotent: true}, &out)

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, attempts)
}

func TestTransport_NonIdempotentCallsRunOnce(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /ship": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, `{"message":"busy"}`)
		},
	})
	transport := NewTransport("ups", server.URL, testConfig(server.URL), Deps{})

	_, err := transport.Do(context.Background(), Request{Operation: "ship", Method: http.MethodPost, Path: "/ship", Body: map[string]string{"a": "b"}})

	ce, ok := domain.AsCarrierError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorKindTransport, ce.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ce.StatusCode)
	assert.Equal(t, "ups", ce.Carrier)
	assert.Len(t, server.calls(http.MethodPost, "/ship"), 1)
}

func TestTransport_UndecodableBody(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /html": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		},
	})
	cfg := testConfig(server.URL)
	cfg.MaxRetries = 0
	transport := NewTransport("dhl", server.URL, cfg, Deps{})

	var out map[string]any
	_, err := transport.DoJSON(context.Background(), Request{Operation: "html", Path: "/html"}, &out)

	assert.True(t, domain.IsTransportError(err))
}

func TestTransport_OpenCircuitIsTransportError(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /down": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, `{"message":"down"}`)
		},
	})
	breakers := resilience.NewCircuitBreakerRegistry(logging.NewNop())
	cfg := resilience.DefaultCircuitBreakerConfig("fedex")
	cfg.FailureThreshold = 1
	cfg.IsFailure = domain.IsTransportError
	breakers.GetWithConfig(cfg)

	testCfg := testConfig(server.URL)
	testCfg.MaxRetries = 0
	transport := NewTransport("fedex", server.URL, testCfg, Deps{Breakers: breakers})

	_, err := transport.Do(context.Background(), Request{Operation: "down", Path: "/down"})
	require.True(t, domain.IsTransportError(err))

	_, err = transport.Do(context.Background(), Request{Operation: "down", Path: "/down"})
	assert.True(t, domain.IsTransportError(err))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, server.calls(http.MethodGet, "/down"), 1)
}

func TestTransport_RejectionsDoNotTripBreaker(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"POST /ship": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"message":"bad address"}`)
		},
	})
	breakers := resilience.NewCircuitBreakerRegistry(logging.NewNop())
	cfg := resilience.DefaultCircuitBreakerConfig("dhl")
	cfg.FailureThreshold = 1
	cfg.IsFailure = domain.IsTransportError
	breakers.GetWithConfig(cfg)
	transport := NewTransport("dhl", server.URL, testConfig(server.URL), Deps{Breakers: breakers})

	for i := 0; i < 3; i++ {
		_, err := transport.Do(context.Background(), Request{Operation: "ship", Method: http.MethodPost, Path: "/ship"})
		ce, ok := domain.AsCarrierError(err)
		require.True(t, ok)
		assert.Equal(t, domain.ErrorKindValidation, ce.Kind)
	}
	assert.Len(t, server.calls(http.MethodPost, "/ship"), 3)
}

func TestTransport_QueryAndAbsolutePath(t *testing.T) {
	server := newFakeCarrier(t, map[string]http.HandlerFunc{
		"GET /other/path": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			writeJSON(w, http.StatusOK, `{}`)
		},
	})
	transport := NewTransport("myus", "https://unused.invalid", testConfig(server.URL), Deps{})

	_, err := transport.Do(context.Background(), Request{
		Operation: "absolute",
		Path:      server.URL + "/other/path",
		Query:     map[string][]string{"page": {"1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://unused.invalid", transport.BaseURL())
}
