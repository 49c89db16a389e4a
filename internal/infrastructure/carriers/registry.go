package carriers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

// Registry maps carrier names to clients
type Registry struct {
	mu       sync.RWMutex
	carriers map[string]domain.Carrier
}

// NewRegistry creates a registry holding the given carriers
func NewRegistry(carriers ...domain.Carrier) *Registry {
	r := &Registry{carriers: make(map[string]domain.Carrier, len(carriers))}
	for _, c := range carriers {
		r.Register(c)
	}
	return r
}

// NewRegistryFromConfig builds a client for every enabled carrier
func NewRegistryFromConfig(configs map[string]Config, deps Deps) (*Registry, error) {
	deps = deps.withDefaults()
	r := NewRegistry()

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := configs[name]
		if !cfg.Enabled {
			continue
		}
		switch name {
		case domain.CarrierFedEx:
			r.Register(NewFedExClient(cfg, deps))
		case domain.CarrierDHL:
			r.Register(NewDHLClient(cfg, deps))
		case domain.CarrierUPS:
			r.Register(NewUPSClient(cfg, deps))
		case domain.CarrierMyUS:
			deps.Logger.Warn("MyUS client is experimental; endpoints come from configuration")
			r.Register(NewMyUSClient(cfg, deps))
		default:
			return nil, fmt.Errorf("unknown carrier %q in configuration", name)
		}
	}
	return r, nil
}

// Register adds or replaces a carrier
func (r *Registry) Register(c domain.Carrier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carriers[c.Name()] = c
}

// Get returns the carrier registered under name
func (r *Registry) Get(name string) (domain.Carrier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carriers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCarrierNotRegistered, name)
	}
	return c, nil
}

// Names lists registered carriers in name order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.carriers))
	for name := range r.carriers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	_ domain.Carrier = (*FedExClient)(nil)
	_ domain.Carrier = (*DHLClient)(nil)
	_ domain.Carrier = (*UPSClient)(nil)
	_ domain.Carrier = (*MyUSClient)(nil)
)
