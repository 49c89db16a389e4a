package carriers

import (
	"net/http"
	"strings"
	"time"

	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
	"github.com/usama216/shipping-market-sub004/pkg/resilience"
)

// Config holds the settings of one carrier client
type Config struct {
	Enabled        bool
	ClientID       string
	ClientSecret   string
	APIKey         string
	AccountNumber  string
	Sandbox        bool
	BaseURL        string
	DefaultService string
	Services       map[string]string
	Timeout        time.Duration
	MaxRetries     int
	RateLimit      float64
	// Endpoints overrides relative paths, MyUS only.
	Endpoints map[string]string
}

// Default transport settings
const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 2
	DefaultRateLimit  = 10.0
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	return c
}

// baseURL returns the configured base URL, or the sandbox/production
// default when none is set.
func (c Config) baseURL(sandbox, production string) string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Sandbox {
		return sandbox
	}
	return production
}

// serviceName resolves a display name from the configured services table
func (c Config) serviceName(code string, fallback map[string]string) string {
	if name, ok := c.Services[code]; ok && name != "" {
		return name
	}
	if name, ok := fallback[code]; ok {
		return name
	}
	return code
}

// Deps are the collaborators shared by every carrier client
type Deps struct {
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Breakers   *resilience.CircuitBreakerRegistry
	Tokens     TokenStore
	HTTPClient *http.Client
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Breakers == nil {
		d.Breakers = resilience.NewCircuitBreakerRegistry(d.Logger)
	}
	if d.Tokens == nil {
		d.Tokens = NewMemoryTokenStore()
	}
	return d
}
