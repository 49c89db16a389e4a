package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
	"github.com/usama216/shipping-market-sub004/pkg/tracing"
)

const maxResponseBytes = 10 << 20

// Request describes one outbound carrier API call
type Request struct {
	Operation string
	Method    string
	Path      string
	Query     url.Values
	// Body is JSON encoded; Form takes precedence when set.
	Body   any
	Form   url.Values
	Header http.Header
	// Idempotent calls are retried on transport errors.
	Idempotent bool
}

// Response is a raw 2xx carrier response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes carrier HTTP calls with rate limiting, a circuit
// breaker, retries for idempotent operations, tracing and metrics.
type Transport struct {
	carrier string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retries int
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewTransport creates the transport of one carrier client
func NewTransport(carrier, baseURL string, cfg Config, deps Deps) *Transport {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig(carrier)
	breakerCfg.IsFailure = domain.IsTransportError

	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	return &Transport{
		carrier: carrier,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		breaker: deps.Breakers.GetWithConfig(breakerCfg),
		retries: cfg.MaxRetries,
		logger:  deps.Logger.WithCarrier(carrier),
		metrics: deps.Metrics,
	}
}

// BaseURL returns the resolved API root
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Do sends the request and returns the 2xx response. Every failure is a
// *domain.CarrierError.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	policy := resilience.NoRetry()
	if req.Idempotent && t.retries > 0 {
		policy = resilience.DefaultRetryConfig()
		policy.MaxAttempts = t.retries + 1
		policy.RetryableErrors = domain.IsTransportError
		policy.OnRetry = func(attempt int, err error) {
			t.metrics.RecordCarrierRetry(t.carrier, req.Operation)
			t.logger.WithContext(ctx).WithOperation(req.Operation).Debug("Retrying carrier call",
				"attempt", attempt,
				"error", err.Error(),
			)
		}
	}

	resp, err := resilience.RetryWithResult(ctx, policy, func() (*Response, error) {
		return resilience.Call(ctx, t.breaker, func() (*Response, error) {
			return t.attempt(ctx, req)
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, transportError(t.carrier, "carrier temporarily unavailable", err)
		}
		if _, ok := domain.AsCarrierError(err); !ok {
			return nil, transportError(t.carrier, "request failed", err)
		}
		return nil, err
	}
	return resp, nil
}

// DoJSON sends the request and decodes the 2xx body into out. An
// undecodable body is a transport error.
func (t *Transport) DoJSON(ctx context.Context, req Request, out any) (*Response, error) {
	resp, err := t.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		ce := transportError(t.carrier, "undecodable response body", err)
		ce.StatusCode = resp.StatusCode
		ce.RawResponse = string(resp.Body)
		return nil, ce
	}
	return resp, nil
}

func (t *Transport) attempt(ctx context.Context, req Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, transportError(t.carrier, "rate limiter", err)
	}

	httpReq, err := t.build(ctx, req)
	if err != nil {
		return nil, domain.NewCarrierError(t.carrier, domain.ErrorKindValidation, "could not build request", err)
	}

	ctx, span := tracing.Tracer().Start(ctx, t.carrier+"."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.CarrierSpanAttributes(t.carrier, req.Operation, httpReq.Method, httpReq.URL.Path)...),
	)
	defer span.End()
	httpReq = httpReq.WithContext(ctx)
	tracing.InjectHTTPHeaders(ctx, httpReq.Header)

	start := time.Now()
	resp, status, err := t.send(httpReq)
	duration := time.Since(start)

	span.SetAttributes(attribute.Int("http.status_code", status))
	tracing.RecordError(span, err)
	t.logger.CarrierCall(ctx, t.carrier, req.Operation, status, duration, err)

	outcome := "success"
	if ce, ok := domain.AsCarrierError(err); ok {
		outcome = string(ce.Kind)
	}
	t.metrics.RecordCarrierRequest(t.carrier, req.Operation, outcome, duration)

	return resp, err
}

func (t *Transport) build(ctx context.Context, req Request) (*http.Request, error) {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = t.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	}
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.Operation, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

func (t *Transport) send(httpReq *http.Request) (*Response, int, error) {
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, 0, transportError(t.carrier, httpReq.Method+" "+httpReq.URL.Path+" failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, transportError(t.carrier, "reading response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ce := FromAPIResponse(body, resp.StatusCode)
		ce.Carrier = t.carrier
		return nil, resp.StatusCode, ce
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, resp.StatusCode, nil
}
