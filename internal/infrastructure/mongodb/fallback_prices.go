package mongodb

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
)

// FallbackPricesCollection holds the stored fallback price table
const FallbackPricesCollection = "fallback_prices"

// StaticFallbackPrices is an in-memory fallback table. An entry with an
// empty service code applies to every service of its carrier.
type StaticFallbackPrices struct {
	mu     sync.RWMutex
	prices map[string]domain.FallbackPrice
}

// NewStaticFallbackPrices indexes the given prices
func NewStaticFallbackPrices(prices []domain.FallbackPrice) *StaticFallbackPrices {
	s := &StaticFallbackPrices{prices: make(map[string]domain.FallbackPrice, len(prices))}
	for _, p := range prices {
		s.Put(p)
	}
	return s
}

// DefaultFallbackPrices is the table used when none is configured
func DefaultFallbackPrices() []domain.FallbackPrice {
	usd := func(base, perLB string) (decimal.Decimal, decimal.Decimal) {
		return decimal.RequireFromString(base), decimal.RequireFromString(perLB)
	}
	entry := func(carrier, service, name, base, perLB string) domain.FallbackPrice {
		b, p := usd(base, perLB)
		return domain.FallbackPrice{Carrier: carrier, ServiceCode: service, ServiceName: name, Base: b, PerLB: p, Currency: domain.DefaultCurrency}
	}
	return []domain.FallbackPrice{
		entry(domain.CarrierFedEx, "FEDEX_INTERNATIONAL_PRIORITY", "FedEx International Priority", "45.00", "6.50"),
		entry(domain.CarrierFedEx, "INTERNATIONAL_ECONOMY", "FedEx International Economy", "38.00", "5.25"),
		entry(domain.CarrierUPS, "07", "UPS Worldwide Express", "47.00", "6.75"),
		entry(domain.CarrierUPS, "65", "UPS Worldwide Saver", "42.00", "6.10"),
		entry(domain.CarrierDHL, "P", "DHL Express Worldwide", "44.00", "6.25"),
		entry(domain.CarrierMyUS, "", "MyUS Economy", "25.00", "4.00"),
	}
}

func priceKey(carrier, serviceCode string) string {
	return strings.ToLower(carrier) + "|" + strings.ToUpper(serviceCode)
}

// Put adds or replaces a price
func (s *StaticFallbackPrices) Put(p domain.FallbackPrice) {
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	s.mu.Lock()
	s.prices[priceKey(p.Carrier, p.ServiceCode)] = p
	s.mu.Unlock()
}

// FallbackPrice returns the service price, or the carrier-wide one
func (s *StaticFallbackPrices) FallbackPrice(_ context.Context, carrier, serviceCode string) (domain.FallbackPrice, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prices[priceKey(carrier, serviceCode)]; ok {
		return p, true, nil
	}
	if p, ok := s.prices[priceKey(carrier, "")]; ok {
		p.ServiceCode = serviceCode
		return p, true, nil
	}
	return domain.FallbackPrice{}, false, nil
}

type fallbackPriceDocument struct {
	Carrier     string               `bson:"carrier"`
	ServiceCode string               `bson:"serviceCode"`
	ServiceName string               `bson:"serviceName,omitempty"`
	Base        primitive.Decimal128 `bson:"base"`
	PerLB       primitive.Decimal128 `bson:"perLb"`
	Currency    string               `bson:"currency"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func toFallbackDocument(p domain.FallbackPrice) (fallbackPriceDocument, error) {
	base, err := primitive.ParseDecimal128(p.Base.String())
	if err != nil {
		return fallbackPriceDocument{}, fmt.Errorf("invalid base price: %w", err)
	}
	perLB, err := primitive.ParseDecimal128(p.PerLB.String())
	if err != nil {
		return fallbackPriceDocument{}, fmt.Errorf("invalid per-lb price: %w", err)
	}
	return fallbackPriceDocument{
		Carrier:     strings.ToLower(p.Carrier),
		ServiceCode: strings.ToUpper(p.ServiceCode),
		ServiceName: p.ServiceName,
		Base:        base,
		PerLB:       perLB,
		Currency:    cmp.Or(p.Currency, domain.DefaultCurrency),
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func (d fallbackPriceDocument) toDomain() (domain.FallbackPrice, error) {
	base, err := decimal.NewFromString(d.Base.String())
	if err != nil {
		return domain.FallbackPrice{}, err
	}
	perLB, err := decimal.NewFromString(d.PerLB.String())
	if err != nil {
		return domain.FallbackPrice{}, err
	}
	return domain.FallbackPrice{
		Carrier:     d.Carrier,
		ServiceCode: d.ServiceCode,
		ServiceName: d.ServiceName,
		Base:        base,
		PerLB:       perLB,
		Currency:    d.Currency,
	}, nil
}

// FallbackPriceStore reads fallback prices from MongoDB
type FallbackPriceStore struct {
	collection *mongo.Collection
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewFallbackPriceStore creates the store and its indexes
func NewFallbackPriceStore(ctx context.Context, db *mongo.Database, logger *logging.Logger, m *metrics.Metrics) *FallbackPriceStore {
	s := &FallbackPriceStore{
		collection: db.Collection(FallbackPricesCollection),
		logger:     logger.WithComponent("fallback-prices"),
		metrics:    m,
	}
	s.ensureIndexes(ctx)
	return s
}

func (s *FallbackPriceStore) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "carrier", Value: 1}, {Key: "serviceCode", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		s.logger.WithError(err).Warn("Failed to create fallback price indexes")
	}
}

// Upsert stores a price, replacing the previous one for the same service
func (s *FallbackPriceStore) Upsert(ctx context.Context, p domain.FallbackPrice) error {
	doc, err := toFallbackDocument(p)
	if err != nil {
		return err
	}
	start := time.Now()
	filter := bson.M{"carrier": doc.Carrier, "serviceCode": doc.ServiceCode}
	_, err = s.collection.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	s.observe(ctx, "upsert", start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to save fallback price: %w", err)
	}
	return nil
}

// InsertIfAbsent stores a price only when none exists for the service, so
// prices edited in the database survive a restart.
func (s *FallbackPriceStore) InsertIfAbsent(ctx context.Context, p domain.FallbackPrice) error {
	doc, err := toFallbackDocument(p)
	if err != nil {
		return err
	}
	start := time.Now()
	filter := bson.M{"carrier": doc.Carrier, "serviceCode": doc.ServiceCode}
	_, err = s.collection.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	s.observe(ctx, "insert_if_absent", start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to seed fallback price: %w", err)
	}
	return nil
}

// FallbackPrice returns the service price, or the carrier-wide one stored
// with an empty service code.
func (s *FallbackPriceStore) FallbackPrice(ctx context.Context, carrier, serviceCode string) (domain.FallbackPrice, bool, error) {
	start := time.Now()
	filter := bson.M{
		"carrier":     strings.ToLower(carrier),
		"serviceCode": bson.M{"$in": bson.A{strings.ToUpper(serviceCode), ""}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "serviceCode", Value: -1}}).SetLimit(1)

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		s.observe(ctx, "find", start, false)
		return domain.FallbackPrice{}, false, fmt.Errorf("failed to query fallback prices: %w", err)
	}
	var docs []fallbackPriceDocument
	err = cursor.All(ctx, &docs)
	s.observe(ctx, "find", start, err == nil)
	if err != nil {
		return domain.FallbackPrice{}, false, fmt.Errorf("failed to decode fallback prices: %w", err)
	}
	if len(docs) == 0 {
		return domain.FallbackPrice{}, false, nil
	}

	price, err := docs[0].toDomain()
	if err != nil {
		return domain.FallbackPrice{}, false, fmt.Errorf("corrupt fallback price for %s: %w", carrier, err)
	}
	if price.ServiceCode == "" {
		price.ServiceCode = serviceCode
	}
	return price, true, nil
}

func (s *FallbackPriceStore) observe(ctx context.Context, operation string, start time.Time, success bool) {
	s.logger.DatabaseQuery(ctx, FallbackPricesCollection, operation, time.Since(start), success)
	s.metrics.RecordMongoDBOperation(FallbackPricesCollection, operation, success)
}

var (
	_ domain.FallbackPriceSource = (*StaticFallbackPrices)(nil)
	_ domain.FallbackPriceSource = (*FallbackPriceStore)(nil)
)
