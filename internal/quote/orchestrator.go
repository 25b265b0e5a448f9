// Package quote orchestrates provider selection: discovery by chain support,
// health filtering, scoring, parallel fan-out and ranked comparison.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/routing"
)

const (
	// quoteTimeout bounds a single provider quote call within a fan-out.
	quoteTimeout = 15 * time.Second

	scoreBase           = 100.0
	scoreHealthyBonus   = 50.0
	scoreUnhealthyMalus = 100.0
	scoreLatencyCeiling = 100.0
	scoreErrorRateScale = 100.0

	// Chain and strategy specific nudges, applied here and nowhere else so
	// bonuses are never double counted.
	nudgeMainnetZeroX   = 20.0
	nudgePolygonOdos    = 15.0
	nudgeLargeTradeZX   = 10.0
	nudgePermit2ZeroX   = 25.0
)

// largeTradeThreshold is 10^21 base units; above it 0x tends to route better.
var largeTradeThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)

// Orchestrator fans quote requests out to registered adapters.
type Orchestrator struct {
	registry *provider.Registry
	health   *provider.HealthMonitor
	quotes   *routing.SupportedQuoteCache
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(registry *provider.Registry, health *provider.HealthMonitor, quotes *routing.SupportedQuoteCache) *Orchestrator {
	return &Orchestrator{registry: registry, health: health, quotes: quotes}
}

// GetQuote returns the single best obtainable quote. When preferred names a
// registered EVM adapter it is attempted once before dynamic selection.
func (o *Orchestrator) GetQuote(ctx context.Context, req *domain.SwapRequest, preferred string, strict bool) (*domain.SwapQuote, error) {
	if preferred != "" {
		if p, ok := o.registry.EVMAggregator(preferred); ok {
			q, err := o.tryProvider(ctx, p, req, strict)
			if err == nil {
				return q, nil
			}
			log.Warn("Preferred provider failed, falling back to dynamic selection",
				"provider", preferred, "err", err)
		} else {
			log.Warn("Preferred provider not registered", "provider", preferred)
		}
	}
	return o.dynamicQuote(ctx, req, strict)
}

// dynamicQuote runs discovery, health filtering, scoring and ordered attempts.
func (o *Orchestrator) dynamicQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	supported := o.registry.ProvidersForChain(req.ChainID)
	if len(supported) == 0 {
		return nil, domain.NewError(domain.ErrUnsupported,
			fmt.Sprintf("no provider supports chain %d (supported chains: %v)", req.ChainID, o.registry.SupportedChains()))
	}

	candidates := o.filterHealthy(ctx, supported)
	if len(candidates) == 0 {
		// Fallback mode: every supported provider is unhealthy, attempt them
		// anyway rather than failing without trying.
		log.Warn("All providers unhealthy, entering fallback mode", "chain", req.ChainID)
		candidates = supported
	}

	ranked := o.rank(ctx, candidates, req)

	var lastErr error
	for _, p := range ranked {
		q, err := o.tryProvider(ctx, p, req, strict)
		if err != nil {
			lastErr = err
			log.Debug("Provider quote failed", "provider", p.Name(), "err", err)
			continue
		}
		return q, nil
	}
	return nil, domain.WrapError(domain.ErrUpstream, "all providers failed to quote", lastErr)
}

// tryProvider issues one bounded quote call and records cache side effects.
func (o *Orchestrator) tryProvider(ctx context.Context, p provider.OnChainAggregator, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	callCtx, cancel := context.WithTimeout(ctx, quoteTimeout)
	defer cancel()

	q, err := p.GetQuote(callCtx, req, strict)
	if err != nil {
		return nil, err
	}
	o.quotes.Record(req.ChainID, req.SellToken, req.BuyToken)
	return q, nil
}

func (o *Orchestrator) filterHealthy(ctx context.Context, providers []provider.OnChainAggregator) []provider.OnChainAggregator {
	var out []provider.OnChainAggregator
	for _, p := range providers {
		if o.health.Check(ctx, p).Status == domain.Healthy {
			out = append(out, p)
		}
	}
	return out
}

// rank orders providers by descending score.
func (o *Orchestrator) rank(ctx context.Context, providers []provider.OnChainAggregator, req *domain.SwapRequest) []provider.OnChainAggregator {
	type scored struct {
		p     provider.OnChainAggregator
		score float64
	}
	ranked := make([]scored, 0, len(providers))
	for _, p := range providers {
		s := o.score(p, o.health.Check(ctx, p), req)
		ranked = append(ranked, scored{p, s})
		log.Debug("Provider scored", "provider", p.Name(), "chain", req.ChainID, "score", s)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]provider.OnChainAggregator, len(ranked))
	for i, s := range ranked {
		out[i] = s.p
	}
	return out
}

// score implements the selection heuristic. Clamped to >= 0.
func (o *Orchestrator) score(p provider.OnChainAggregator, health domain.ProviderHealth, req *domain.SwapRequest) float64 {
	score := scoreBase

	switch health.Status {
	case domain.Healthy:
		score += scoreHealthyBonus
	case domain.Unhealthy:
		score -= scoreUnhealthyMalus
	}
	latencyMs := float64(health.Latency.Milliseconds())
	if bonus := scoreLatencyCeiling - latencyMs; bonus > 0 {
		score += bonus
	}
	score -= scoreErrorRateScale * health.ErrorRate

	name := p.Name()
	if req.ChainID == 1 && name == "0x" {
		score += nudgeMainnetZeroX
	}
	if req.ChainID == 137 && name == "odos" {
		score += nudgePolygonOdos
	}
	if name == "0x" {
		if amount, err := domain.ParseAmount(req.SellAmount); err == nil && amount.Cmp(largeTradeThreshold) > 0 {
			score += nudgeLargeTradeZX
		}
		if req.ApprovalStrategy == domain.ApprovalPermit2 {
			score += nudgePermit2ZeroX
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Comparison is the ranked result of a multi-provider fan-out.
type Comparison struct {
	Quotes          []*domain.SwapQuote `json:"quotes"`
	BestAggregator  string              `json:"bestAggregator"`
	BestQuote       *domain.SwapQuote   `json:"bestQuote"`
	PriceDifference string              `json:"priceDifference"`
}

// GetMultipleQuotes calls every chain-supported adapter in parallel,
// regardless of health, and returns all successful quotes ranked by output.
// It fails only when every adapter fails.
func (o *Orchestrator) GetMultipleQuotes(ctx context.Context, req *domain.SwapRequest) (*Comparison, error) {
	supported := o.registry.ProvidersForChain(req.ChainID)
	if len(supported) == 0 {
		return nil, domain.NewError(domain.ErrUnsupported,
			fmt.Sprintf("no provider supports chain %d", req.ChainID))
	}

	var (
		mu      sync.Mutex
		quotes  []*domain.SwapQuote
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range supported {
		g.Go(func() error {
			q, err := o.tryProvider(gctx, p, req, false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Partial failure is tolerated; remember the last cause.
				lastErr = err
				log.Debug("Fan-out quote failed", "provider", p.Name(), "err", err)
				return nil
			}
			quotes = append(quotes, q)
			return nil
		})
	}
	_ = g.Wait()

	if len(quotes) == 0 {
		return nil, domain.WrapError(domain.ErrUpstream, "all providers failed to quote", lastErr)
	}
	return rankQuotes(quotes, o.scoresByName(ctx, supported, req)), nil
}

// scoresByName evaluates the selection heuristic for each provider, keyed by
// adapter name.
func (o *Orchestrator) scoresByName(ctx context.Context, providers []provider.OnChainAggregator, req *domain.SwapRequest) map[string]float64 {
	scores := make(map[string]float64, len(providers))
	for _, p := range providers {
		scores[p.Name()] = o.score(p, o.health.Check(ctx, p), req)
	}
	return scores
}

// rankQuotes orders quotes by descending buy amount, breaking amount ties by
// provider score, and derives the best/worst price difference.
func rankQuotes(quotes []*domain.SwapQuote, scores map[string]float64) *Comparison {
	sort.SliceStable(quotes, func(i, j int) bool {
		a := domain.ParseAmountOrZero(quotes[i].BuyAmount)
		b := domain.ParseAmountOrZero(quotes[j].BuyAmount)
		if c := a.Cmp(b); c != 0 {
			return c > 0
		}
		return scores[quotes[i].Aggregator] > scores[quotes[j].Aggregator]
	})

	best := quotes[0]
	diff := "0"
	if len(quotes) > 1 {
		bestOut := domain.ParseAmountOrZero(best.BuyAmount)
		worstOut := domain.ParseAmountOrZero(quotes[len(quotes)-1].BuyAmount)
		diff = domain.PriceDifferencePct(bestOut, worstOut)
	}
	return &Comparison{
		Quotes:          quotes,
		BestAggregator:  best.Aggregator,
		BestQuote:       best,
		PriceDifference: diff,
	}
}

// CrossChainRoutes fans out to every meta-aggregator concurrently and merges
// their routes, tolerating partial failure.
func (o *Orchestrator) CrossChainRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]*domain.RouteQuote, error) {
	metas := o.registry.MetaAggregators()
	if len(metas) == 0 {
		return nil, domain.NewError(domain.ErrUnsupported, "no meta-aggregator registered")
	}

	var (
		mu      sync.Mutex
		routes  []*domain.RouteQuote
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range metas {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, quoteTimeout)
			defer cancel()
			rs, err := m.GetRoutes(callCtx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				log.Debug("Meta-aggregator routes failed", "provider", m.Name(), "err", err)
				return nil
			}
			routes = append(routes, rs...)
			return nil
		})
	}
	_ = g.Wait()

	if len(routes) == 0 {
		return nil, domain.WrapError(domain.ErrUpstream, "no cross-chain routes available", lastErr)
	}
	sortRoutes(routes)
	o.quotes.Record(req.From.Chain, req.SellToken, req.BuyToken)
	return routes, nil
}

// SolanaRoutes quotes every registered Solana router concurrently.
func (o *Orchestrator) SolanaRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]*domain.RouteQuote, error) {
	routers := o.registry.SolanaRouters()
	if len(routers) == 0 {
		return nil, domain.NewError(domain.ErrUnsupported, "no solana router registered")
	}
	return o.gatherRoutes(ctx, req, len(routers), func(i int, callCtx context.Context) (*domain.RouteQuote, error) {
		return routers[i].Quote(callCtx, req)
	})
}

// NativeRoutes quotes every registered native-L1 router concurrently.
func (o *Orchestrator) NativeRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]*domain.RouteQuote, error) {
	routers := o.registry.NativeRouters()
	if len(routers) == 0 {
		return nil, domain.NewError(domain.ErrUnsupported, "no native router registered")
	}
	return o.gatherRoutes(ctx, req, len(routers), func(i int, callCtx context.Context) (*domain.RouteQuote, error) {
		return routers[i].QuoteBTC(callCtx, req)
	})
}

// gatherRoutes runs n indexed quote calls in parallel, tolerating partial
// failure, and returns the merged ranked set.
func (o *Orchestrator) gatherRoutes(ctx context.Context, req *domain.UniversalSwapRequest, n int,
	call func(i int, ctx context.Context) (*domain.RouteQuote, error)) ([]*domain.RouteQuote, error) {

	var (
		mu      sync.Mutex
		routes  []*domain.RouteQuote
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, quoteTimeout)
			defer cancel()
			q, err := call(i, callCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			routes = append(routes, q)
			return nil
		})
	}
	_ = g.Wait()

	if len(routes) == 0 {
		return nil, domain.WrapError(domain.ErrUpstream, "every router failed to quote", lastErr)
	}
	sortRoutes(routes)
	o.quotes.Record(req.From.Chain, req.SellToken, req.BuyToken)
	return routes, nil
}

func sortRoutes(routes []*domain.RouteQuote) {
	sort.SliceStable(routes, func(i, j int) bool {
		a := domain.ParseAmountOrZero(routes[i].TotalEstimatedOut)
		b := domain.ParseAmountOrZero(routes[j].TotalEstimatedOut)
		return a.Cmp(b) > 0
	})
}

// BestRouteProvider returns the provider name of the top-ranked route, or ""
// for an empty set. Callers use it for the recommendedRoute field.
func BestRouteProvider(routes []*domain.RouteQuote) string {
	if len(routes) == 0 {
		return ""
	}
	return routes[0].Provider
}

// RouteFromSwapQuote presents a single-chain aggregator quote in the route
// shape so the API can serve one routes[] list regardless of category.
func RouteFromSwapQuote(q *domain.SwapQuote, chainID uint64) *domain.RouteQuote {
	return &domain.RouteQuote{
		Provider:          q.Aggregator,
		TotalEstimatedOut: q.BuyAmount,
		PriceImpact:       q.PriceImpact,
		Confidence:        1.0,
		Steps: []domain.RouteStep{
			{
				Kind:     "swap",
				ChainID:  chainID,
				Details:  fmt.Sprintf("%s -> %s via %s", q.SellToken, q.BuyToken, q.Aggregator),
				Protocol: q.Aggregator,
			},
		},
		Fees: domain.RouteFees{Gas: q.Gas},
	}
}

// HealthSummary exposes the monitor's view for the pre-check and the API.
func (o *Orchestrator) HealthSummary(ctx context.Context) map[string]domain.ProviderHealth {
	var ps []provider.Provider
	for _, p := range o.registry.EVMAggregators() {
		ps = append(ps, p)
	}
	return o.health.Snapshot(ctx, ps)
}

// AggregatorNamesForChain lists EVM adapter names supporting a chain.
func (o *Orchestrator) AggregatorNamesForChain(chainID uint64) []string {
	var names []string
	for _, p := range o.registry.ProvidersForChain(chainID) {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// NormalizeAggregatorName resolves a legacy enum value to an adapter name so
// older callers can keep sending ZEROX/ODOS.
func NormalizeAggregatorName(name string) string {
	switch strings.ToUpper(name) {
	case string(domain.AggregatorZeroX):
		return "0x"
	case string(domain.AggregatorOdos):
		return "odos"
	}
	return name
}
