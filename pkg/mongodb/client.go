// Package mongodb opens the shared MongoDB connection used for fallback
// prices and the shipment audit trail.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config holds MongoDB connection settings. Credentials travel in the URI.
type Config struct {
	URI            string
	Database       string
	AppName        string
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	MaxPoolSize    uint64
}

// DefaultConfig returns a Config pointing at a local server
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "shipping",
		AppName:        "shipping-carrier-gateway",
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
		MaxPoolSize:    20,
	}
}

// Client owns the driver connection and the selected database
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	ping     time.Duration
}

// NewClient connects and verifies the primary is reachable
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	c := &Client{
		client:   client,
		database: client.Database(cfg.Database),
		ping:     cfg.PingTimeout,
	}
	if err := c.HealthCheck(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return c, nil
}

// Database returns the configured database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// HealthCheck pings the primary, bounded by the configured ping timeout
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.ping > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ping)
		defer cancel()
	}
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
