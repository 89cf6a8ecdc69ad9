package flashloan

import (
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flashloan-executor/business/execution/app"
)

// Canonical provider names.
const (
	ProviderAave     = "Aave"
	ProviderBalancer = "Balancer"
)

// PoolOverrides returns a configured target for a provider name.
type PoolOverrides func(provider string) (common.Address, bool)

// Registry resolves provider names case-insensitively, ignoring '_' and '-'.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]app.ProviderAdapter
}

var _ app.ProviderRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]app.ProviderAdapter)}
}

// NewDefaultRegistry registers Aave and Balancer at their canonical addresses
// unless overridden. Both call back the receiver named in the calldata, so the
// signing account can call them directly. Pool-style flash loans such as
// Uniswap V3 call back msg.sender and are not offered.
func NewDefaultRegistry(overrides PoolOverrides) (*Registry, error) {
	if overrides == nil {
		overrides = func(string) (common.Address, bool) { return common.Address{}, false }
	}
	override := func(names ...string) (common.Address, bool) {
		for _, n := range names {
			if addr, ok := overrides(n); ok {
				return addr, true
			}
		}
		return common.Address{}, false
	}
	target := func(fallback common.Address, names ...string) common.Address {
		if addr, ok := override(names...); ok {
			return addr
		}
		return fallback
	}

	r := NewRegistry()

	aave, err := NewAave(target(AaveV3PoolAddress, ProviderAave, "aave_v3"))
	if err != nil {
		return nil, err
	}
	r.Register(aave, "aave_v3")

	balancer, err := NewBalancer(target(BalancerVaultAddress, ProviderBalancer, "balancer_v2"))
	if err != nil {
		return nil, err
	}
	r.Register(balancer, "balancer_v2")

	return r, nil
}

// Register adds a under its name and any aliases.
func (r *Registry) Register(a app.ProviderAdapter, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[normalize(a.Name())] = a
	for _, alias := range aliases {
		r.adapters[normalize(alias)] = a
	}
}

// Lookup returns the adapter registered for name.
func (r *Registry) Lookup(name string) (app.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[normalize(name)]
	return a, ok
}

// Names returns the canonical names of registered providers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		if _, ok := seen[a.Name()]; ok {
			continue
		}
		seen[a.Name()] = struct{}{}
		names = append(names, a.Name())
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(name)))
}
