package provider

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/domain"
)

// Registry is the self-registration target. Adapters register themselves from
// the composition root at startup; the host then fires the registration
// latch, after which the maps are effectively read-only.
type Registry struct {
	mu sync.RWMutex

	evm    map[string]OnChainAggregator
	meta   map[string]MetaAggregator
	solana map[string]SolanaRouter
	native map[string]NativeRouter

	// legacy mirrors "0x" and "odos" under the old enum for callers that
	// predate named registration.
	legacy map[domain.AggregatorType]OnChainAggregator

	completeOnce sync.Once
	complete     chan struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		evm:      make(map[string]OnChainAggregator),
		meta:     make(map[string]MetaAggregator),
		solana:   make(map[string]SolanaRouter),
		native:   make(map[string]NativeRouter),
		legacy:   make(map[domain.AggregatorType]OnChainAggregator),
		complete: make(chan struct{}),
	}
}

// RegisterEVM adds an on-chain aggregator. A second registration of the same
// name is ignored with a warning.
func (r *Registry) RegisterEVM(p OnChainAggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, dup := r.evm[name]; dup {
		log.Warn("Duplicate provider registration ignored", "category", domain.CategoryEVMAggregator, "name", name)
		return
	}
	r.evm[name] = p
	if t, ok := domain.AggregatorTypeForName(name); ok {
		r.legacy[t] = p
	}
	r.announce(domain.CategoryEVMAggregator, name)
}

// RegisterMeta adds a meta-aggregator.
func (r *Registry) RegisterMeta(p MetaAggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.meta[p.Name()]; dup {
		log.Warn("Duplicate provider registration ignored", "category", domain.CategoryMetaAggregator, "name", p.Name())
		return
	}
	r.meta[p.Name()] = p
	r.announce(domain.CategoryMetaAggregator, p.Name())
}

// RegisterSolana adds a Solana router.
func (r *Registry) RegisterSolana(p SolanaRouter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.solana[p.Name()]; dup {
		log.Warn("Duplicate provider registration ignored", "category", domain.CategorySolanaRouter, "name", p.Name())
		return
	}
	r.solana[p.Name()] = p
	r.announce(domain.CategorySolanaRouter, p.Name())
}

// RegisterNative adds a native-L1 router.
func (r *Registry) RegisterNative(p NativeRouter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.native[p.Name()]; dup {
		log.Warn("Duplicate provider registration ignored", "category", domain.CategoryNativeRouter, "name", p.Name())
		return
	}
	r.native[p.Name()] = p
	r.announce(domain.CategoryNativeRouter, p.Name())
}

// Register adds a provider under an explicit category. The adapter must
// implement the category's capability set.
func (r *Registry) Register(p Provider, category domain.ProviderCategory) {
	switch category {
	case domain.CategoryEVMAggregator:
		if a, ok := p.(OnChainAggregator); ok {
			r.RegisterEVM(a)
			return
		}
	case domain.CategoryMetaAggregator:
		if a, ok := p.(MetaAggregator); ok {
			r.RegisterMeta(a)
			return
		}
	case domain.CategorySolanaRouter:
		if a, ok := p.(SolanaRouter); ok {
			r.RegisterSolana(a)
			return
		}
	case domain.CategoryNativeRouter:
		if a, ok := p.(NativeRouter); ok {
			r.RegisterNative(a)
			return
		}
	}
	log.Warn("Provider does not implement category capability set", "category", category, "name", p.Name())
}

// announce logs a registration before the latch fires. Caller holds the lock.
func (r *Registry) announce(category domain.ProviderCategory, name string) {
	select {
	case <-r.complete:
		// Late registrations stay valid but are not announced.
	default:
		log.Info("Provider registered", "category", category, "name", name)
	}
}

// OnRegistrationComplete is transitioned exactly once by the host after the
// composition root has registered every adapter.
func (r *Registry) OnRegistrationComplete() {
	r.completeOnce.Do(func() {
		close(r.complete)
		r.mu.RLock()
		defer r.mu.RUnlock()
		log.Info("Provider registration complete",
			"evm", len(r.evm), "meta", len(r.meta), "solana", len(r.solana), "native", len(r.native))
	})
}

// RegistrationComplete reports whether the latch has fired.
func (r *Registry) RegistrationComplete() bool {
	select {
	case <-r.complete:
		return true
	default:
		return false
	}
}

// EVMAggregator looks up an on-chain aggregator by name.
func (r *Registry) EVMAggregator(name string) (OnChainAggregator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.evm[name]
	return p, ok
}

// LegacyAggregator looks up by the backward-compatible enum.
func (r *Registry) LegacyAggregator(t domain.AggregatorType) (OnChainAggregator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.legacy[t]
	return p, ok
}

// EVMAggregators returns every registered on-chain aggregator.
func (r *Registry) EVMAggregators() []OnChainAggregator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OnChainAggregator, 0, len(r.evm))
	for _, p := range r.evm {
		out = append(out, p)
	}
	return out
}

// MetaAggregators returns every registered meta-aggregator.
func (r *Registry) MetaAggregators() []MetaAggregator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MetaAggregator, 0, len(r.meta))
	for _, p := range r.meta {
		out = append(out, p)
	}
	return out
}

// SolanaRouters returns every registered Solana router.
func (r *Registry) SolanaRouters() []SolanaRouter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SolanaRouter, 0, len(r.solana))
	for _, p := range r.solana {
		out = append(out, p)
	}
	return out
}

// NativeRouters returns every registered native router.
func (r *Registry) NativeRouters() []NativeRouter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NativeRouter, 0, len(r.native))
	for _, p := range r.native {
		out = append(out, p)
	}
	return out
}

// ProvidersForChain filters on-chain aggregators by chain support.
func (r *Registry) ProvidersForChain(chainID uint64) []OnChainAggregator {
	var out []OnChainAggregator
	for _, p := range r.EVMAggregators() {
		if p.SupportsChain(chainID) {
			out = append(out, p)
		}
	}
	return out
}

// SupportedChains returns the union of every EVM aggregator's chains.
func (r *Registry) SupportedChains() []uint64 {
	seen := make(map[uint64]bool)
	var out []uint64
	for _, p := range r.EVMAggregators() {
		for _, id := range p.SupportedChains() {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Empty reports whether no adapter of any category is registered.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.evm)+len(r.meta)+len(r.solana)+len(r.native) == 0
}
