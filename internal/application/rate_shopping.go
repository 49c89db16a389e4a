package application

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/tracing"
)

// Rate shopping defaults
const (
	DefaultRateCacheTTL       = 300 * time.Second
	DefaultRateTimeout        = 5 * time.Second
	DefaultRateMaxConcurrency = 8

	// dimensionBucketIN3 groups package volumes for the cache fingerprint
	dimensionBucketIN3 = 500.0
)

// DefaultCarrierPriority breaks ties between equally priced, equally fast quotes
var DefaultCarrierPriority = []string{
	domain.CarrierFedEx,
	domain.CarrierUPS,
	domain.CarrierDHL,
	domain.CarrierMyUS,
}

// OptionMapping binds an abstract shipping option to a carrier service.
// An empty Service means the cheapest service the carrier quotes.
type OptionMapping struct {
	Carrier string `json:"carrier" mapstructure:"carrier"`
	Service string `json:"service" mapstructure:"service"`
}

// RateShoppingConfig holds the rate fetch policy
type RateShoppingConfig struct {
	CacheTTL        time.Duration
	Timeout         time.Duration
	CarrierPriority []string
	MaxConcurrency  int
}

// DefaultRateShoppingConfig returns the default rate fetch policy
func DefaultRateShoppingConfig() RateShoppingConfig {
	return RateShoppingConfig{
		CacheTTL:        DefaultRateCacheTTL,
		Timeout:         DefaultRateTimeout,
		CarrierPriority: append([]string(nil), DefaultCarrierPriority...),
		MaxConcurrency:  DefaultRateMaxConcurrency,
	}
}

func (c RateShoppingConfig) withDefaults() RateShoppingConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultRateTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultRateMaxConcurrency
	}
	if len(c.CarrierPriority) == 0 {
		c.CarrierPriority = append([]string(nil), DefaultCarrierPriority...)
	}
	return c
}

// Fingerprint is the rate cache key of a carrier service for a request.
// Requests on the same route with the same weight and volume buckets share it.
func Fingerprint(carrier, service string, req domain.ShipmentRequest) string {
	parts := []string{
		strings.ToLower(carrier),
		strings.ToUpper(service),
		req.Shipper.Zone(),
		req.Recipient.Zone(),
		strconv.Itoa(domain.CeilBucket(req.TotalWeightLB(), 1)),
		strconv.Itoa(domain.CeilBucket(req.TotalVolumeIN3(), dimensionBucketIN3)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "rates:" + hex.EncodeToString(sum[:])
}

// RateShopper fans rate requests out to the eligible carriers and ranks
// whatever comes back within the timeout.
type RateShopper struct {
	carriers CarrierLookup
	options  map[string]OptionMapping
	cache    domain.RateCache
	fallback domain.FallbackPriceSource
	config   RateShoppingConfig
	priority map[string]int
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewRateShopper creates a RateShopper. cache and fallback may be nil.
func NewRateShopper(
	carriers CarrierLookup,
	options map[string]OptionMapping,
	cache domain.RateCache,
	fallback domain.FallbackPriceSource,
	config RateShoppingConfig,
	logger *logging.Logger,
	m *metrics.Metrics,
) *RateShopper {
	config = config.withDefaults()
	priority := make(map[string]int, len(config.CarrierPriority))
	for i, name := range config.CarrierPriority {
		priority[strings.ToLower(name)] = i
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RateShopper{
		carriers: carriers,
		options:  options,
		cache:    cache,
		fallback: fallback,
		config:   config,
		priority: priority,
		logger:   logger.WithComponent("rate-shopper"),
		metrics:  m,
	}
}

// rateTarget is one eligible option resolved to a registered carrier
type rateTarget struct {
	optionID string
	carrier  domain.Carrier
	service  string
	key      string
}

// liveOutcome is the result of one carrier's rate call
type liveOutcome struct {
	carrier string
	rates   []domain.RateResponse
	err     error
}

// ShopRates returns ranked rate results for the requested shipping options.
// An empty option list shops every mapped option. No eligible carrier gives
// an empty result; eligible carriers without any price give the results
// together with domain.ErrNoRatesAvailable.
func (s *RateShopper) ShopRates(ctx context.Context, req domain.ShipmentRequest, optionIDs []string) ([]domain.RateResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRateShop(time.Since(start)) }()

	ctx, span := tracing.Tracer().Start(ctx, "rate_shopping.shop")
	defer span.End()

	if err := req.Validate(); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	targets := s.resolve(optionIDs)
	span.SetAttributes(attribute.Int("rate_shopping.eligible", len(targets)))
	if len(targets) == 0 {
		s.logger.Info("No eligible carriers for rate shopping", "options", optionIDs)
		return []domain.RateResult{}, nil
	}

	results := make([]domain.RateResult, len(targets))
	pending := make(map[string][]int)
	live := make(map[string]domain.Carrier)
	for i := range targets {
		t := &targets[i]
		t.key = Fingerprint(t.carrier.Name(), t.service, req)
		if cached, ok := s.lookupCache(ctx, t.key); ok {
			results[i] = domain.RateFromCache(*cached)
			results[i].OptionID = t.optionID
			continue
		}
		name := t.carrier.Name()
		pending[name] = append(pending[name], i)
		live[name] = t.carrier
	}

	if len(live) > 0 {
		outcomes := s.fetchLive(ctx, live, req)
		for name, idxs := range pending {
			outcome := outcomes[name]
			for _, i := range idxs {
				results[i] = s.resolveOutcome(ctx, targets[i], outcome, req)
			}
		}
	}

	s.rank(results)

	priced := 0
	for _, r := range results {
		source := string(r.Source)
		if r.IsFailed() {
			source = "failed"
		} else {
			priced++
		}
		s.metrics.RecordRateResult(r.Carrier, source)
	}

	if priced == 0 {
		s.logger.Warn("Rate shopping produced no usable price", "eligible", len(targets))
		tracing.RecordError(span, domain.ErrNoRatesAvailable)
		return results, domain.ErrNoRatesAvailable
	}

	best := results[0]
	s.logger.Info("Rate shopping completed",
		"eligible", len(targets),
		"priced", priced,
		"bestCarrier", best.Carrier,
		"bestService", best.ServiceCode,
		"bestPrice", best.Price.String(),
		"bestSource", best.Source,
		"duration", time.Since(start),
	)
	return results, nil
}

// resolve maps option ids to registered carriers, skipping unmapped options
// and unknown carriers.
func (s *RateShopper) resolve(optionIDs []string) []rateTarget {
	if len(optionIDs) == 0 {
		optionIDs = make([]string, 0, len(s.options))
		for id := range s.options {
			optionIDs = append(optionIDs, id)
		}
		sort.Strings(optionIDs)
	}

	seen := make(map[string]bool, len(optionIDs))
	targets := make([]rateTarget, 0, len(optionIDs))
	for _, id := range optionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		mapping, ok := s.options[id]
		if !ok {
			mapping, ok = s.options[strings.ToLower(id)]
		}
		if !ok {
			s.logger.Debug("Skipping unmapped shipping option", "option", id)
			continue
		}
		carrier, err := s.carriers.Get(strings.ToLower(mapping.Carrier))
		if err != nil {
			s.logger.Debug("Skipping option for unavailable carrier", "option", id, "carrier", mapping.Carrier)
			continue
		}
		targets = append(targets, rateTarget{
			optionID: id,
			carrier:  carrier,
			service:  mapping.Service,
		})
	}
	return targets
}

func (s *RateShopper) lookupCache(ctx context.Context, key string) (*domain.RateResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	rate, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("Rate cache lookup failed", "key", key)
		ok = false
	}
	s.metrics.RecordRateCacheLookup(ok)
	return rate, ok
}

// fetchLive calls GetRates once per carrier, concurrently, and returns when
// every carrier answered or the timeout elapsed. Carriers still in flight at
// the deadline get a timeout outcome and their late answers are dropped.
func (s *RateShopper) fetchLive(ctx context.Context, live map[string]domain.Carrier, req domain.ShipmentRequest) map[string]liveOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	sem := semaphore.NewWeighted(int64(s.config.MaxConcurrency))
	out := make(chan liveOutcome, len(live))
	for name, carrier := range live {
		go func(name string, carrier domain.Carrier) {
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- liveOutcome{carrier: name, err: s.timeoutError(name, err)}
				return
			}
			defer sem.Release(1)
			rates, err := s.quote(ctx, carrier, req)
			if err != nil && ctx.Err() != nil {
				err = s.timeoutError(name, ctx.Err())
			}
			out <- liveOutcome{carrier: name, rates: rates, err: err}
		}(name, carrier)
	}

	outcomes := make(map[string]liveOutcome, len(live))
	for len(outcomes) < len(live) {
		select {
		case o := <-out:
			outcomes[o.carrier] = o
		case <-ctx.Done():
			for name := range live {
				if _, done := outcomes[name]; done {
					continue
				}
				s.logger.WithCarrier(name).Warn("Carrier rate request abandoned at deadline", "timeout", s.config.Timeout)
				outcomes[name] = liveOutcome{carrier: name, err: s.timeoutError(name, ctx.Err())}
			}
			return outcomes
		}
	}
	return outcomes
}

func (s *RateShopper) timeoutError(carrier string, cause error) error {
	return domain.NewCarrierError(carrier, domain.ErrorKindTransport,
		fmt.Sprintf("rate request timed out after %s", s.config.Timeout), cause)
}

// quote authenticates and fetches rates from one carrier
func (s *RateShopper) quote(ctx context.Context, carrier domain.Carrier, req domain.ShipmentRequest) ([]domain.RateResponse, error) {
	return tracing.TracedOperation(ctx, "rate_shopping.carrier", func(ctx context.Context) ([]domain.RateResponse, error) {
		ok, err := carrier.Authenticate(ctx)
		if err != nil {
			if _, isCarrierErr := domain.AsCarrierError(err); !isCarrierErr {
				err = domain.NewCarrierError(carrier.Name(), domain.ErrorKindAuth, "authentication failed", err)
			}
			return nil, err
		}
		if !ok {
			return nil, domain.NewCarrierError(carrier.Name(), domain.ErrorKindAuth, "authentication failed", nil)
		}
		return carrier.GetRates(ctx, req)
	}, attribute.String("carrier.name", carrier.Name()))
}

// resolveOutcome turns one carrier outcome into the result for one option
func (s *RateShopper) resolveOutcome(ctx context.Context, t rateTarget, o liveOutcome, req domain.ShipmentRequest) domain.RateResult {
	name := t.carrier.Name()
	logger := s.logger.WithCarrier(name)

	if o.err != nil {
		if domain.IsAuthError(o.err) {
			logger.WithError(o.err).Warn("Carrier authentication failed during rate shopping", "option", t.optionID)
			return s.withOption(domain.RateFailed(name, t.service, o.err), t)
		}
		logger.WithError(o.err).Warn("Carrier rate request failed, using fallback price", "option", t.optionID)
		return s.withOption(s.fallbackRate(ctx, name, t.service, req, o.err), t)
	}

	quote, ok := pickQuote(o.rates, t.service)
	if !ok {
		err := domain.NewCarrierError(name, domain.ErrorKindBusiness,
			fmt.Sprintf("carrier did not quote service %q", t.service), nil)
		logger.Warn("Carrier returned no quote for mapped service", "option", t.optionID, "service", t.service, "quotes", len(o.rates))
		return s.withOption(s.fallbackRate(ctx, name, t.service, req, err), t)
	}
	if quote.Currency == "" {
		quote.Currency = domain.DefaultCurrency
	}

	if s.cache != nil && s.config.CacheTTL > 0 {
		if err := s.cache.Set(ctx, t.key, quote, s.config.CacheTTL); err != nil {
			logger.WithError(err).Warn("Failed to cache rate", "key", t.key)
		}
	}
	return s.withOption(domain.RateFromAPI(quote), t)
}

func (s *RateShopper) withOption(r domain.RateResult, t rateTarget) domain.RateResult {
	r.OptionID = t.optionID
	return r
}

// fallbackRate prices a failed carrier from the stored fallback table
func (s *RateShopper) fallbackRate(ctx context.Context, carrier, service string, req domain.ShipmentRequest, cause error) domain.RateResult {
	if s.fallback == nil {
		return domain.RateFailed(carrier, service, cause)
	}
	price, ok, err := s.fallback.FallbackPrice(ctx, carrier, service)
	if err != nil {
		s.logger.WithCarrier(carrier).WithError(err).Error("Failed to load fallback price", "service", service)
		return domain.RateFailed(carrier, service, cause)
	}
	if !ok {
		return domain.RateFailed(carrier, service, cause)
	}
	return domain.RateFromDatabase(
		carrier,
		cmp.Or(price.ServiceCode, service),
		price.ServiceName,
		price.PriceFor(req),
		cmp.Or(price.Currency, domain.DefaultCurrency),
		cause,
	)
}

// pickQuote selects the quote for service, or the cheapest when service is empty
func pickQuote(rates []domain.RateResponse, service string) (domain.RateResponse, bool) {
	var best domain.RateResponse
	found := false
	for _, r := range rates {
		if service != "" && !strings.EqualFold(r.ServiceCode, service) {
			continue
		}
		if !found || r.Price.LessThan(best.Price) {
			best = r
			found = true
		}
	}
	return best, found
}

// rank orders results deterministically and flags the first priced entry
func (s *RateShopper) rank(results []domain.RateResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if ga, gb := rankGroup(a), rankGroup(b); ga != gb {
			return ga < gb
		}
		if a.HasPrice() && b.HasPrice() && !a.Price.Equal(*b.Price) {
			return a.Price.LessThan(*b.Price)
		}
		if ta, tb := transitKey(a), transitKey(b); ta != tb {
			return ta < tb
		}
		if pa, pb := s.priorityOf(a.Carrier), s.priorityOf(b.Carrier); pa != pb {
			return pa < pb
		}
		if a.Carrier != b.Carrier {
			return a.Carrier < b.Carrier
		}
		if a.ServiceCode != b.ServiceCode {
			return a.ServiceCode < b.ServiceCode
		}
		return a.OptionID < b.OptionID
	})

	for i := range results {
		results[i].Best = false
	}
	if len(results) > 0 && results[0].HasPrice() {
		results[0].Best = true
	}
}

// rankGroup puts live prices first, then fallback prices, then failures
func rankGroup(r domain.RateResult) int {
	switch {
	case r.IsFailed():
		return 2
	case r.Source == domain.RateSourceDatabase:
		return 1
	default:
		return 0
	}
}

// transitKey sorts unknown transit times after every known one
func transitKey(r domain.RateResult) int {
	if r.TransitDays <= 0 {
		return int(^uint(0) >> 1)
	}
	return r.TransitDays
}

func (s *RateShopper) priorityOf(carrier string) int {
	if p, ok := s.priority[carrier]; ok {
		return p
	}
	return len(s.priority)
}

