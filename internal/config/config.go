package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/usama216/shipping-market-sub004/internal/application"
	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/internal/infrastructure/carriers"
)

// EnvPrefix prefixes every environment override, e.g. SHIPPING_CARRIERS_FEDEX_CLIENT_ID
const EnvPrefix = "SHIPPING"

// KnownCarriers are the carrier sections read from configuration
var KnownCarriers = []string{domain.CarrierFedEx, domain.CarrierDHL, domain.CarrierUPS, domain.CarrierMyUS}

// Config holds all service configuration
type Config struct {
	App            AppConfig
	Carriers       map[string]carriers.Config
	OptionMapping  map[string]application.OptionMapping
	RateShopping   application.RateShoppingConfig
	FallbackPrices []domain.FallbackPrice
	Tracking       TrackingConfig
	Redis          RedisConfig
	MongoDB        MongoDBConfig
	Kafka          KafkaConfig
	Temporal       TemporalConfig
	Tracing        TracingConfig
}

// AppConfig holds process level settings
type AppConfig struct {
	Name        string
	Env         string
	Version     string
	ServerAddr  string
	MetricsAddr string
	LogLevel    string
}

// TrackingConfig holds bulk tracking settings
type TrackingConfig struct {
	Concurrency int
}

// RedisConfig enables the shared rate cache and token store
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	SharedTokens bool
}

// MongoDBConfig enables stored fallback prices and shipment records
type MongoDBConfig struct {
	Enabled  bool
	URI      string
	Database string
}

// KafkaConfig enables event publishing
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	ClientID string
}

// TemporalConfig holds the worker connection settings
type TemporalConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

type fallbackPriceEntry struct {
	Carrier     string `mapstructure:"carrier"`
	Service     string `mapstructure:"service"`
	ServiceName string `mapstructure:"service_name"`
	Base        string `mapstructure:"base"`
	PerLB       string `mapstructure:"per_lb"`
	Currency    string `mapstructure:"currency"`
}

// LoadDotEnv loads the first .env file found. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

// Load reads configuration. Priority, highest first:
// 1. SHIPPING_ environment variables (dots become underscores)
// 2. the config file at path, or config.yaml in the working directory
// 3. built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:        v.GetString("app.name"),
			Env:         v.GetString("app.env"),
			Version:     v.GetString("app.version"),
			ServerAddr:  v.GetString("app.server_addr"),
			MetricsAddr: v.GetString("app.metrics_addr"),
			LogLevel:    v.GetString("app.log_level"),
		},
		Carriers: make(map[string]carriers.Config, len(KnownCarriers)),
		RateShopping: application.RateShoppingConfig{
			CacheTTL:        seconds(v, "rate_shopping.cache_ttl"),
			Timeout:         seconds(v, "rate_shopping.timeout"),
			CarrierPriority: lower(v.GetStringSlice("rate_shopping.carrier_priority")),
			MaxConcurrency:  v.GetInt("rate_shopping.max_concurrency"),
		},
		Tracking: TrackingConfig{
			Concurrency: v.GetInt("tracking.concurrency"),
		},
		Redis: RedisConfig{
			Enabled:      v.GetBool("redis.enabled"),
			Addr:         v.GetString("redis.addr"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			SharedTokens: v.GetBool("redis.shared_tokens"),
		},
		MongoDB: MongoDBConfig{
			Enabled:  v.GetBool("mongodb.enabled"),
			URI:      v.GetString("mongodb.uri"),
			Database: v.GetString("mongodb.database"),
		},
		Kafka: KafkaConfig{
			Enabled:  v.GetBool("kafka.enabled"),
			Brokers:  v.GetStringSlice("kafka.brokers"),
			ClientID: v.GetString("kafka.client_id"),
		},
		Temporal: TemporalConfig{
			HostPort:  v.GetString("temporal.host_port"),
			Namespace: v.GetString("temporal.namespace"),
			TaskQueue: v.GetString("temporal.task_queue"),
		},
		Tracing: TracingConfig{
			Enabled:    v.GetBool("tracing.enabled"),
			Endpoint:   v.GetString("tracing.endpoint"),
			SampleRate: v.GetFloat64("tracing.sample_rate"),
		},
	}

	for _, name := range KnownCarriers {
		cfg.Carriers[name] = carrierConfig(v, name)
	}

	if err := v.UnmarshalKey("option_mapping", &cfg.OptionMapping); err != nil {
		return nil, fmt.Errorf("invalid option_mapping: %w", err)
	}
	for id, m := range cfg.OptionMapping {
		m.Carrier = strings.ToLower(m.Carrier)
		cfg.OptionMapping[id] = m
	}

	var entries []fallbackPriceEntry
	if err := v.UnmarshalKey("fallback_prices", &entries); err != nil {
		return nil, fmt.Errorf("invalid fallback_prices: %w", err)
	}
	prices, err := toFallbackPrices(entries)
	if err != nil {
		return nil, err
	}
	cfg.FallbackPrices = prices

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shipping-carrier-gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.server_addr", ":8080")
	v.SetDefault("app.metrics_addr", ":9090")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("rate_shopping.cache_ttl", application.DefaultRateCacheTTL.Seconds())
	v.SetDefault("rate_shopping.timeout", application.DefaultRateTimeout.Seconds())
	v.SetDefault("rate_shopping.carrier_priority", application.DefaultCarrierPriority)
	v.SetDefault("rate_shopping.max_concurrency", application.DefaultRateMaxConcurrency)
	v.SetDefault("tracking.concurrency", application.DefaultTrackingConcurrency)

	for _, name := range KnownCarriers {
		prefix := "carriers." + name + "."
		v.SetDefault(prefix+"enabled", name != domain.CarrierMyUS)
		v.SetDefault(prefix+"sandbox", true)
		v.SetDefault(prefix+"timeout", carriers.DefaultTimeout.Seconds())
		v.SetDefault(prefix+"max_retries", carriers.DefaultMaxRetries)
		v.SetDefault(prefix+"rate_limit", carriers.DefaultRateLimit)
	}
	v.SetDefault("carriers.fedex.default_service", "FEDEX_INTERNATIONAL_PRIORITY")
	v.SetDefault("carriers.dhl.default_service", "P")
	v.SetDefault("carriers.ups.default_service", "07")

	v.SetDefault("option_mapping", map[string]any{
		"fedex_priority": map[string]any{"carrier": domain.CarrierFedEx, "service": "FEDEX_INTERNATIONAL_PRIORITY"},
		"fedex_economy":  map[string]any{"carrier": domain.CarrierFedEx, "service": "INTERNATIONAL_ECONOMY"},
		"dhl_express":    map[string]any{"carrier": domain.CarrierDHL, "service": "P"},
		"ups_saver":      map[string]any{"carrier": domain.CarrierUPS, "service": "65"},
		"ups_express":    map[string]any{"carrier": domain.CarrierUPS, "service": "07"},
		"myus_standard":  map[string]any{"carrier": domain.CarrierMyUS, "service": ""},
	})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.shared_tokens", true)
	v.SetDefault("mongodb.enabled", false)
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "shipping")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "shipping-carrier-gateway")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "shipping-carrier-queue")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 1.0)
}

func carrierConfig(v *viper.Viper, name string) carriers.Config {
	prefix := "carriers." + name + "."

	// viper lowercases map keys; service codes are upper case everywhere else
	services := make(map[string]string)
	for code, display := range v.GetStringMapString(prefix + "services") {
		services[strings.ToUpper(code)] = display
	}

	return carriers.Config{
		Enabled:        v.GetBool(prefix + "enabled"),
		ClientID:       v.GetString(prefix + "client_id"),
		ClientSecret:   v.GetString(prefix + "client_secret"),
		APIKey:         v.GetString(prefix + "api_key"),
		AccountNumber:  v.GetString(prefix + "account_number"),
		Sandbox:        v.GetBool(prefix + "sandbox"),
		BaseURL:        v.GetString(prefix + "base_url"),
		DefaultService: v.GetString(prefix + "default_service"),
		Services:       services,
		Timeout:        seconds(v, prefix+"timeout"),
		MaxRetries:     v.GetInt(prefix + "max_retries"),
		RateLimit:      v.GetFloat64(prefix + "rate_limit"),
		Endpoints:      v.GetStringMapString(prefix + "endpoints"),
	}
}

func toFallbackPrices(entries []fallbackPriceEntry) ([]domain.FallbackPrice, error) {
	prices := make([]domain.FallbackPrice, 0, len(entries))
	for i, e := range entries {
		base, err := decimal.NewFromString(cmp.Or(e.Base, "0"))
		if err != nil {
			return nil, fmt.Errorf("fallback_prices[%d].base: %w", i, err)
		}
		perLB, err := decimal.NewFromString(cmp.Or(e.PerLB, "0"))
		if err != nil {
			return nil, fmt.Errorf("fallback_prices[%d].per_lb: %w", i, err)
		}
		prices = append(prices, domain.FallbackPrice{
			Carrier:     strings.ToLower(e.Carrier),
			ServiceCode: strings.ToUpper(e.Service),
			ServiceName: e.ServiceName,
			Base:        base,
			PerLB:       perLB,
			Currency:    strings.ToUpper(cmp.Or(e.Currency, domain.DefaultCurrency)),
		})
	}
	return prices, nil
}

// CarrierServices returns the offered services per carrier
func (c *Config) CarrierServices() map[string]map[string]string {
	out := make(map[string]map[string]string, len(c.Carriers))
	for name, cc := range c.Carriers {
		out[name] = cc.Services
	}
	return out
}

func (c *Config) validate() error {
	if c.RateShopping.Timeout <= 0 {
		return fmt.Errorf("rate_shopping.timeout must be positive")
	}
	if c.RateShopping.CacheTTL < 0 {
		return fmt.Errorf("rate_shopping.cache_ttl cannot be negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	for id, m := range c.OptionMapping {
		if _, ok := c.Carriers[m.Carrier]; !ok {
			return fmt.Errorf("option_mapping.%s: unknown carrier %q", id, m.Carrier)
		}
	}
	for i, p := range c.FallbackPrices {
		if _, ok := c.Carriers[p.Carrier]; !ok {
			return fmt.Errorf("fallback_prices[%d]: unknown carrier %q", i, p.Carrier)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetFloat64(key) * float64(time.Second))
}

func lower(values []string) []string {
	out := make([]string, 0, len(values))
	for _, s := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

