package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the shipping service metrics. A nil *Metrics is valid and
// records nothing, which keeps unit tests free of registry setup.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	CarrierRequestsTotal   *prometheus.CounterVec
	CarrierRequestDuration *prometheus.HistogramVec
	CarrierRetries         *prometheus.CounterVec
	CarrierTokenRefreshes  *prometheus.CounterVec

	RateShopResults  *prometheus.CounterVec
	RateShopDuration prometheus.Histogram
	RateCacheLookups *prometheus.CounterVec

	ShipmentsSubmitted *prometheus.CounterVec
	TrackingPolls      *prometheus.CounterVec

	KafkaEventsPublished *prometheus.CounterVec
	MongoDBOperations    *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "shipping",
	}
}

// New creates a new Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.CarrierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "carrier_requests_total", Help: "Outbound carrier API calls"},
		[]string{"carrier", "operation", "outcome"},
	)
	m.CarrierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "carrier_request_duration_seconds",
			Help:      "Outbound carrier API call latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"carrier", "operation"},
	)
	m.CarrierRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "carrier_retries_total", Help: "Transport-level retries of idempotent carrier calls"},
		[]string{"carrier", "operation"},
	)
	m.CarrierTokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "carrier_token_refreshes_total", Help: "Carrier token endpoint calls"},
		[]string{"carrier", "status"},
	)

	m.RateShopResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "rate_shop_results_total", Help: "Rate results by carrier and provenance"},
		[]string{"carrier", "source"},
	)
	m.RateShopDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "rate_shop_duration_seconds",
		Help:      "Wall-clock duration of one rate shopping run",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
	})
	m.RateCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "rate_cache_lookups_total", Help: "Rate cache lookups"},
		[]string{"result"},
	)

	m.ShipmentsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "shipments_submitted_total", Help: "Shipment submissions by terminal state"},
		[]string{"carrier", "state"},
	)
	m.TrackingPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "tracking_polls_total", Help: "Tracking polls by normalized status"},
		[]string{"carrier", "status"},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB operations"},
		[]string{"service", "collection", "operation", "status"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CarrierRequestsTotal,
		m.CarrierRequestDuration,
		m.CarrierRetries,
		m.CarrierTokenRefreshes,
		m.RateShopResults,
		m.RateShopDuration,
		m.RateCacheLookups,
		m.ShipmentsSubmitted,
		m.TrackingPolls,
		m.KafkaEventsPublished,
		m.MongoDBOperations,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordCarrierRequest records one outbound carrier call. outcomeLabel is the
// error kind or "success".
func (m *Metrics) RecordCarrierRequest(carrier, operation, outcomeLabel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CarrierRequestsTotal.WithLabelValues(carrier, operation, outcomeLabel).Inc()
	m.CarrierRequestDuration.WithLabelValues(carrier, operation).Observe(duration.Seconds())
}

// RecordCarrierRetry counts a transport retry
func (m *Metrics) RecordCarrierRetry(carrier, operation string) {
	if m == nil {
		return
	}
	m.CarrierRetries.WithLabelValues(carrier, operation).Inc()
}

// RecordTokenRefresh counts a token endpoint call
func (m *Metrics) RecordTokenRefresh(carrier string, success bool) {
	if m == nil {
		return
	}
	m.CarrierTokenRefreshes.WithLabelValues(carrier, outcome(success)).Inc()
}

// RecordRateResult counts one ranked rate result
func (m *Metrics) RecordRateResult(carrier, source string) {
	if m == nil {
		return
	}
	m.RateShopResults.WithLabelValues(carrier, source).Inc()
}

// ObserveRateShop records the duration of a rate shopping run
func (m *Metrics) ObserveRateShop(duration time.Duration) {
	if m == nil {
		return
	}
	m.RateShopDuration.Observe(duration.Seconds())
}

// RecordRateCacheLookup records a cache hit or miss
func (m *Metrics) RecordRateCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RateCacheLookups.WithLabelValues(result).Inc()
}

// RecordShipmentSubmitted records a submission reaching a terminal state
func (m *Metrics) RecordShipmentSubmitted(carrier, state string) {
	if m == nil {
		return
	}
	m.ShipmentsSubmitted.WithLabelValues(carrier, state).Inc()
}

// RecordTrackingPoll records a normalized tracking status
func (m *Metrics) RecordTrackingPoll(carrier, status string) {
	if m == nil {
		return
	}
	m.TrackingPolls.WithLabelValues(carrier, status).Inc()
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, outcome(success)).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, outcome(success)).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}
