// Package bootstrap wires configuration into the carrier gateway's
// infrastructure and application services. Both binaries share it.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/internal/config"
	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/internal/infrastructure/cache"
	"github.com/usama216/shipping-market-sub004/internal/infrastructure/carriers"
	"github.com/usama216/shipping-market-sub004/internal/infrastructure/events"
	mongoStore "github.com/usama216/shipping-market-sub004/internal/infrastructure/mongodb"
	"github.com/usama216/shipping-market-sub004/pkg/cloudevents"
	"github.com/usama216/shipping-market-sub004/pkg/kafka"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/mongodb"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
)

// EventSource is the CloudEvents source of every published event
const EventSource = "/shipping-carrier-gateway"

// Components holds the wired services and the resources behind them
type Components struct {
	Carriers    *carriers.Registry
	Breakers    *resilience.CircuitBreakerRegistry
	Rates       *application.RateShopper
	Submissions *application.SubmissionCoordinator
	Tracking    *application.TrackingAggregator

	redis    *redis.Client
	mongo    *mongodb.Client
	producer *kafka.Producer
	logger   *logging.Logger
}

// Build connects the enabled backends and constructs the application
// services. Disabled backends fall back to in-process implementations.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*Components, error) {
	c := &Components{logger: logger}

	c.Breakers = resilience.NewCircuitBreakerRegistry(logger, func(name string, _, to gobreaker.State) {
		m.SetCircuitBreakerState(name, int(to))
	})

	var rateCache domain.RateCache = cache.NewMemoryRateCache()
	var tokens carriers.TokenStore = carriers.NewMemoryTokenStore()
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.redis = client
		rateCache = cache.NewRedisRateCache(client, logger)
		if cfg.Redis.SharedTokens {
			tokens = carriers.NewRedisTokenStore(client)
		}
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr, "sharedTokens", cfg.Redis.SharedTokens)
	}

	prices := cfg.FallbackPrices
	if len(prices) == 0 {
		prices = mongoStore.DefaultFallbackPrices()
	}
	var fallback domain.FallbackPriceSource = mongoStore.NewStaticFallbackPrices(prices)
	var recorder domain.ShipmentRecorder = mongoStore.NewLogShipmentRecorder(logger)
	if cfg.MongoDB.Enabled {
		mongoCfg := mongodb.DefaultConfig()
		mongoCfg.URI = cfg.MongoDB.URI
		mongoCfg.Database = cfg.MongoDB.Database
		client, err := mongodb.NewClient(ctx, mongoCfg)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.mongo = client

		store := mongoStore.NewFallbackPriceStore(ctx, client.Database(), logger, m)
		seedFallbackPrices(ctx, store, cfg.FallbackPrices, logger)
		fallback = store
		recorder = mongoStore.NewShipmentRecorder(ctx, client.Database(), logger, m)
		logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)
	}

	factory := cloudevents.NewEventFactory(EventSource)
	var publisher application.EventPublisher = events.NewLogPublisher(factory, logger)
	if cfg.Kafka.Enabled {
		kafkaCfg := kafka.DefaultConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		kafkaCfg.ClientID = cfg.Kafka.ClientID
		c.producer = kafka.NewProducer(kafkaCfg)
		publisher = events.NewKafkaPublisher(c.producer, factory, logger, m)
		logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	}

	registry, err := carriers.NewRegistryFromConfig(cfg.Carriers, carriers.Deps{
		Logger:   logger,
		Metrics:  m,
		Breakers: c.Breakers,
		Tokens:   tokens,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build carrier clients: %w", err)
	}
	c.Carriers = registry
	logger.Info("Carrier clients ready", "carriers", registry.Names())

	c.Rates = application.NewRateShopper(registry, cfg.OptionMapping, rateCache, fallback, cfg.RateShopping, logger, m)
	c.Submissions = application.NewSubmissionCoordinator(registry, cfg.CarrierServices(), recorder, publisher, logger, m)
	c.Tracking = application.NewTrackingAggregator(registry, publisher, cfg.Tracking.Concurrency, logger, m)
	return c, nil
}

// fallbackSeeder is the write side of the stored fallback price table
type fallbackSeeder interface {
	Upsert(ctx context.Context, p domain.FallbackPrice) error
	InsertIfAbsent(ctx context.Context, p domain.FallbackPrice) error
}

// seedFallbackPrices writes configured prices over stored ones. Without
// configured prices the defaults fill in only the services not stored yet.
func seedFallbackPrices(ctx context.Context, store fallbackSeeder, configured []domain.FallbackPrice, logger *logging.Logger) {
	write, prices := store.Upsert, configured
	if len(configured) == 0 {
		write, prices = store.InsertIfAbsent, mongoStore.DefaultFallbackPrices()
	}
	for _, p := range prices {
		if err := write(ctx, p); err != nil {
			logger.WithError(err).Warn("Failed to seed fallback price", "carrier", p.Carrier, "service", p.ServiceCode)
		}
	}
	logger.Info("Fallback prices seeded", "count", len(prices), "fromConfig", len(configured) > 0)
}

// HealthCheck pings every enabled backend
func (c *Components) HealthCheck(ctx context.Context) error {
	if c.mongo != nil {
		if err := c.mongo.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases every backend connection
func (c *Components) Close() {
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			c.logger.WithError(err).Error("Failed to close Kafka producer")
		}
	}
	if c.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.mongo.Close(ctx); err != nil {
			c.logger.WithError(err).Error("Failed to close MongoDB client")
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.WithError(err).Error("Failed to close Redis client")
		}
	}
}
