// Package routing classifies universal swap requests: what kind of swap a
// source/destination pair describes, which provider category must serve it,
// and whether the gateway can route the chains at all.
package routing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
)

// ErrUnroutable is returned when no swap type can be derived for a pair.
var ErrUnroutable = domain.NewError(domain.ErrUnsupported, "request is unroutable")

// Classifier decides swap type and provider category for universal requests.
type Classifier struct {
	registry *provider.Registry
	quotes   *SupportedQuoteCache
}

// NewClassifier wires a classifier to the registry and quote cache.
func NewClassifier(registry *provider.Registry, quotes *SupportedQuoteCache) *Classifier {
	return &Classifier{registry: registry, quotes: quotes}
}

// Quotes exposes the supported-quote cache for orchestrator side effects.
func (c *Classifier) Quotes() *SupportedQuoteCache { return c.quotes }

// DetermineSwapType infers the swap type of a request. A caller-supplied
// override is accepted only when it matches the derived result; otherwise the
// derivation wins and the mismatch is logged.
func (c *Classifier) DetermineSwapType(req *domain.UniversalSwapRequest) (domain.SwapType, error) {
	derived, err := deriveSwapType(req.From, req.To)
	if err != nil {
		return "", err
	}
	if req.SwapType != "" && req.SwapType != derived {
		log.Warn("Swap type override inconsistent with derivation",
			"override", req.SwapType, "derived", derived,
			"fromChain", req.From.Chain, "toChain", req.To.Chain)
	}
	return derived, nil
}

// deriveSwapType is the deterministic classification table.
func deriveSwapType(from, to domain.ChainRef) (domain.SwapType, error) {
	if !from.Ecosystem.Known() || !to.Ecosystem.Known() {
		return "", ErrUnroutable
	}

	sameEcosystem := from.Ecosystem == to.Ecosystem
	switch {
	case sameEcosystem && from.Chain == to.Chain:
		return domain.SwapOnChain, nil
	case !sameEcosystem && (from.Ecosystem.NativeLike() || to.Ecosystem.NativeLike()):
		return domain.SwapNative, nil
	case !sameEcosystem:
		return domain.SwapCrossChain, nil
	case from.Ecosystem == domain.EcosystemEVM:
		return chains.SwapTypeForEVMPair(from.Chain, to.Chain), nil
	default:
		// Same non-EVM ecosystem, different chains.
		return domain.SwapCrossChain, nil
	}
}

// CategoryFor maps a swap type and its source side to the provider category
// that must serve it.
func (c *Classifier) CategoryFor(swapType domain.SwapType, from domain.ChainRef) (domain.ProviderCategory, error) {
	switch swapType {
	case domain.SwapOnChain:
		if from.Ecosystem.EVMLike() {
			return domain.CategoryEVMAggregator, nil
		}
		if from.Ecosystem == domain.EcosystemSolana {
			return domain.CategorySolanaRouter, nil
		}
		return "", domain.NewError(domain.ErrUnsupported,
			fmt.Sprintf("no on-chain provider category for ecosystem %s", from.Ecosystem))
	case domain.SwapCrossChain, domain.SwapL1ToL2, domain.SwapL2ToL1, domain.SwapL2ToL2:
		return domain.CategoryMetaAggregator, nil
	case domain.SwapNative:
		return domain.CategoryNativeRouter, nil
	}
	return "", ErrUnroutable
}

// ProviderNames lists the registered adapters of a category.
func (c *Classifier) ProviderNames(category domain.ProviderCategory) []string {
	var names []string
	switch category {
	case domain.CategoryEVMAggregator:
		for _, p := range c.registry.EVMAggregators() {
			names = append(names, p.Name())
		}
	case domain.CategoryMetaAggregator:
		for _, p := range c.registry.MetaAggregators() {
			names = append(names, p.Name())
		}
	case domain.CategorySolanaRouter:
		for _, p := range c.registry.SolanaRouters() {
			names = append(names, p.Name())
		}
	case domain.CategoryNativeRouter:
		for _, p := range c.registry.NativeRouters() {
			names = append(names, p.Name())
		}
	}
	return names
}

// IsChainCompatible reports whether the gateway can route between the two
// sides. Before any adapter has registered the check passes, letting the
// first successful quote populate the supported-quote cache.
func (c *Classifier) IsChainCompatible(req *domain.UniversalSwapRequest) bool {
	if !req.From.Ecosystem.Known() || !req.To.Ecosystem.Known() {
		return false
	}
	if c.registry.Empty() && !c.registry.RegistrationComplete() {
		return true // bootstrap
	}
	return c.sideSupported(req.From) && c.sideSupported(req.To)
}

func (c *Classifier) sideSupported(side domain.ChainRef) bool {
	if c.quotes.HasChain(side.Chain) {
		return true
	}
	if side.Ecosystem.EVMLike() {
		if len(c.registry.ProvidersForChain(side.Chain)) > 0 {
			return true
		}
		for _, m := range c.registry.MetaAggregators() {
			from, to := m.SupportedChains()
			if containsChain(from, side.Chain) || containsChain(to, side.Chain) {
				return true
			}
		}
		return false
	}
	if side.Ecosystem == domain.EcosystemSolana {
		return len(c.registry.SolanaRouters()) > 0
	}
	if side.Ecosystem.NativeLike() {
		return len(c.registry.NativeRouters()) > 0
	}
	// Remaining ecosystems route through meta-aggregators.
	return len(c.registry.MetaAggregators()) > 0
}

func containsChain(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Analysis is the routing preview served by /swap-analysis/analyze.
type Analysis struct {
	SwapType   domain.SwapType         `json:"swapType"`
	Category   domain.ProviderCategory `json:"providerCategory"`
	Providers  []string                `json:"providers"`
	Compatible bool                    `json:"chainCompatible"`
}

// Analyze runs the full classification for a request without quoting.
func (c *Classifier) Analyze(req *domain.UniversalSwapRequest) (*Analysis, error) {
	swapType, err := c.DetermineSwapType(req)
	if err != nil {
		return nil, err
	}
	category, err := c.CategoryFor(swapType, req.From)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		SwapType:   swapType,
		Category:   category,
		Providers:  c.ProviderNames(category),
		Compatible: c.IsChainCompatible(req),
	}, nil
}
