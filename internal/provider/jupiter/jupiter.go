// Package jupiter adapts the Jupiter v6 API as a Solana router. The raw quote
// body is cached per route id because the swap-build endpoint wants it echoed
// back verbatim.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/upstream"
)

const (
	// Name is the registry key.
	Name = "jupiter"

	defaultBaseURL = "https://quote-api.jup.ag"

	// solMint is the wrapped SOL mint used for the health probe.
	solMint = "So11111111111111111111111111111111111111112"
	// usdcMint is the USDC mint on Solana mainnet.
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	quoteCacheSize = 256

	defaultSlippageBps = 50
)

// Adapter is the Jupiter client.
type Adapter struct {
	client *upstream.Client

	// rawQuotes holds upstream quote bodies keyed by gateway route id.
	rawQuotes *lru.Cache
}

// New builds the adapter. apiKey may be empty on the public tier.
func New(baseURL, apiKey string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"x-api-key": apiKey}
	}
	cache, _ := lru.New(quoteCacheSize)
	return &Adapter{
		client:    upstream.New(Name, baseURL, timeout, headers),
		rawQuotes: cache,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Config() provider.Config {
	return provider.Config{BaseURL: a.client.BaseURL(), Timeout: a.client.Timeout()}
}

// CheckHealth issues a minimal SOL to USDC quote.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	q := url.Values{}
	q.Set("inputMint", solMint)
	q.Set("outputMint", usdcMint)
	q.Set("amount", "1000000")
	return a.client.GetJSON(ctx, "/v6/quote", q, nil)
}

// SupportsTokenPair is permissive; Jupiter indexes nearly every SPL pair and
// unroutable pairs fail at quote time with a clear upstream error.
func (a *Adapter) SupportsTokenPair(_, _ string) bool { return true }

// cachedQuote pairs the verbatim upstream quote body with the taker that
// requested it.
type cachedQuote struct {
	raw   json.RawMessage
	taker string
}

// quoteResponse is the subset of the v6 quote payload the gateway reads.
type quoteResponse struct {
	OutAmount      string `json:"outAmount"`
	OtherAmount    string `json:"otherAmountThreshold"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
		Percent int `json:"percent"`
	} `json:"routePlan"`
}

// Quote fetches a route for an SPL token pair.
func (a *Adapter) Quote(ctx context.Context, req *domain.UniversalSwapRequest) (*domain.RouteQuote, error) {
	q := url.Values{}
	q.Set("inputMint", req.SellToken)
	q.Set("outputMint", req.BuyToken)
	q.Set("amount", req.SellAmount)
	bps := int64(defaultSlippageBps)
	if req.SlippagePercentage != "" {
		if parsed, err := domain.SlippageBps(req.SlippagePercentage); err == nil {
			bps = parsed
		}
	}
	q.Set("slippageBps", strconv.FormatInt(bps, 10))

	var raw json.RawMessage
	if err := a.client.GetJSON(ctx, "/v6/quote", q, &raw); err != nil {
		return nil, err
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "decoding jupiter quote", err)
	}
	if resp.OutAmount == "" {
		return nil, domain.NewError(domain.ErrUpstream, "jupiter returned no route")
	}

	routeID := uuid.NewString()
	a.rawQuotes.Add(routeID, cachedQuote{raw: raw, taker: req.Taker})

	route := &domain.RouteQuote{
		Provider:          Name,
		TotalEstimatedOut: resp.OutAmount,
		RouteID:           routeID,
		PriceImpact:       resp.PriceImpactPct,
		Confidence:        1.0,
	}
	for _, hop := range resp.RoutePlan {
		route.Steps = append(route.Steps, domain.RouteStep{
			Kind:     "swap",
			Details:  fmt.Sprintf("%s (%d%%)", hop.SwapInfo.Label, hop.Percent),
			Protocol: hop.SwapInfo.Label,
		})
	}
	if len(route.Steps) > 2 {
		route.Confidence = 0.8
	}
	return route, nil
}

// BuildAndSign assembles the swap transaction for a previously quoted route.
// The returned transaction is base64 and unsigned; the keypair is accepted
// for interface symmetry only and never forwarded upstream.
func (a *Adapter) BuildAndSign(ctx context.Context, quote *domain.RouteQuote, keypair string) (*provider.SolanaTransaction, error) {
	v, ok := a.rawQuotes.Get(quote.RouteID)
	if !ok {
		return nil, domain.NewError(domain.ErrQuoteExpired,
			fmt.Sprintf("route %s is unknown or expired", quote.RouteID))
	}
	cached := v.(cachedQuote)

	body := map[string]any{
		"quoteResponse":             cached.raw,
		"userPublicKey":             cached.taker,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	}
	var resp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := a.client.PostJSON(ctx, "/v6/swap", body, &resp); err != nil {
		return nil, err
	}
	if resp.SwapTransaction == "" {
		return nil, domain.NewError(domain.ErrUpstream, "jupiter returned no transaction")
	}
	return &provider.SolanaTransaction{RawTx: resp.SwapTransaction}, nil
}
