// Package lifi adapts the LI.FI API as a cross-chain meta-aggregator. Routes
// are cached by id so a caller can redeem one via Execute, which signs and
// submits the route's transaction through the injected submitter.
package lifi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/upstream"
)

const (
	// Name is the registry key.
	Name = "lifi"

	defaultBaseURL = "https://li.quest"

	// routeCacheSize bounds how many quoted routes stay redeemable.
	routeCacheSize = 256
)

var routableChains = []uint64{
	chains.Ethereum, chains.Optimism, chains.BSC, chains.Polygon,
	chains.ZkSyncEra, chains.Base, chains.Arbitrum, chains.Avalanche,
}

// Submitter signs and broadcasts one transaction payload on a chain on behalf
// of the signer, returning the transaction hash. Wired to the execution layer
// by the composition root.
type Submitter func(ctx context.Context, chainID uint64, tx *domain.TransactionRequest, signer provider.SignerContext) (string, error)

// Adapter is the LI.FI client.
type Adapter struct {
	client *upstream.Client
	submit Submitter

	// routes caches quoted routes by id for later Execute/Status calls.
	routes *lru.Cache
}

// cachedRoute is the redeemable product of one GetRoutes call.
type cachedRoute struct {
	chainID uint64
	tx      domain.TransactionRequest
	txHash  string
}

// New builds the adapter. apiKey may be empty.
func New(baseURL, apiKey string, timeout time.Duration, submit Submitter) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"x-lifi-api-key": apiKey}
	}
	cache, _ := lru.New(routeCacheSize)
	return &Adapter{
		client: upstream.New(Name, baseURL, timeout, headers),
		submit: submit,
		routes: cache,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Config() provider.Config {
	return provider.Config{BaseURL: a.client.BaseURL(), Timeout: a.client.Timeout()}
}

// CheckHealth hits the chain inventory endpoint.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	return a.client.GetJSON(ctx, "/v1/chains", nil, nil)
}

// SupportedChains reports the routable set, identical on both sides.
func (a *Adapter) SupportedChains() (from, to []uint64) {
	from = make([]uint64, len(routableChains))
	copy(from, routableChains)
	to = make([]uint64, len(routableChains))
	copy(to, routableChains)
	return from, to
}

// quoteResponse is the subset of the LI.FI quote payload the gateway uses.
type quoteResponse struct {
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	Estimate struct {
		ToAmount      string `json:"toAmount"`
		ToAmountMin   string `json:"toAmountMin"`
		ExecutionSecs uint64 `json:"executionDuration"`
		GasCosts      []cost `json:"gasCosts"`
		FeeCosts      []cost `json:"feeCosts"`
	} `json:"estimate"`
	IncludedSteps []struct {
		Type   string `json:"type"`
		Tool   string `json:"tool"`
		Action struct {
			FromChainID uint64 `json:"fromChainId"`
			ToChainID   uint64 `json:"toChainId"`
		} `json:"action"`
	} `json:"includedSteps"`
	TransactionRequest struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
		GasPrice string `json:"gasPrice"`
		ChainID  uint64 `json:"chainId"`
	} `json:"transactionRequest"`
}

type cost struct {
	Amount string `json:"amount"`
	Name   string `json:"name"`
}

// GetRoutes quotes a cross-chain route and caches it for redemption.
func (a *Adapter) GetRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]*domain.RouteQuote, error) {
	q := url.Values{}
	q.Set("fromChain", strconv.FormatUint(req.From.Chain, 10))
	q.Set("toChain", strconv.FormatUint(req.To.Chain, 10))
	q.Set("fromToken", req.SellToken)
	q.Set("toToken", req.BuyToken)
	q.Set("fromAmount", req.SellAmount)
	if req.Taker != "" {
		q.Set("fromAddress", req.Taker)
	}
	if req.Recipient != "" {
		q.Set("toAddress", req.Recipient)
	}
	if req.SlippagePercentage != "" {
		if bps, err := domain.SlippageBps(req.SlippagePercentage); err == nil {
			q.Set("slippage", fmt.Sprintf("%g", float64(bps)/10000))
		}
	}

	var resp quoteResponse
	if err := a.client.GetJSON(ctx, "/v1/quote", q, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, domain.NewError(domain.ErrUpstream, "lifi returned no route")
	}

	route := &domain.RouteQuote{
		Provider:          Name,
		TotalEstimatedOut: resp.Estimate.ToAmount,
		ETASeconds:        resp.Estimate.ExecutionSecs,
		RouteID:           resp.ID,
		Confidence:        confidence(len(resp.IncludedSteps)),
	}
	for _, s := range resp.IncludedSteps {
		kind := "swap"
		if s.Type == "cross" || s.Action.FromChainID != s.Action.ToChainID {
			kind = "bridge"
		}
		route.Steps = append(route.Steps, domain.RouteStep{
			Kind:     kind,
			ChainID:  s.Action.FromChainID,
			Details:  fmt.Sprintf("%s via %s", s.Type, s.Tool),
			Protocol: s.Tool,
		})
	}
	if len(resp.Estimate.GasCosts) > 0 {
		route.Fees.Gas = resp.Estimate.GasCosts[0].Amount
	}
	if len(resp.Estimate.FeeCosts) > 0 {
		route.Fees.Provider = resp.Estimate.FeeCosts[0].Amount
	}

	a.routes.Add(resp.ID, &cachedRoute{
		chainID: req.From.Chain,
		tx: domain.TransactionRequest{
			To:       resp.TransactionRequest.To,
			Data:     resp.TransactionRequest.Data,
			Value:    resp.TransactionRequest.Value,
			GasLimit: resp.TransactionRequest.GasLimit,
			GasPrice: resp.TransactionRequest.GasPrice,
		},
	})
	return []*domain.RouteQuote{route}, nil
}

// Execute redeems a cached route by submitting its source-chain transaction.
// The signer context is used for this call only and not retained.
func (a *Adapter) Execute(ctx context.Context, routeID string, signer provider.SignerContext) ([]string, error) {
	v, ok := a.routes.Get(routeID)
	if !ok {
		return nil, domain.NewError(domain.ErrQuoteExpired,
			fmt.Sprintf("route %s is unknown or expired", routeID))
	}
	if a.submit == nil {
		return nil, domain.NewError(domain.ErrUnsupported, "route execution is not wired on this deployment")
	}
	route := v.(*cachedRoute)

	hash, err := a.submit(ctx, route.chainID, &route.tx, signer)
	if err != nil {
		return nil, err
	}
	route.txHash = hash
	a.routes.Add(routeID, route)
	return []string{hash}, nil
}

// Status polls the bridge transfer status for an executed route.
func (a *Adapter) Status(ctx context.Context, routeID string) (domain.ExecutionStatus, error) {
	v, ok := a.routes.Get(routeID)
	if !ok {
		return "", domain.NewError(domain.ErrNotFound, fmt.Sprintf("route %s is unknown", routeID))
	}
	route := v.(*cachedRoute)
	if route.txHash == "" {
		return domain.StatusPending, nil
	}

	q := url.Values{}
	q.Set("txHash", route.txHash)
	var resp struct {
		Status string `json:"status"`
	}
	if err := a.client.GetJSON(ctx, "/v1/status", q, &resp); err != nil {
		return "", err
	}
	switch resp.Status {
	case "DONE":
		return domain.StatusSuccess, nil
	case "FAILED":
		return domain.StatusFailed, nil
	default:
		return domain.StatusPending, nil
	}
}

// confidence degrades with route complexity, clamped to [0.1, 1.0].
func confidence(steps int) float64 {
	c := 1.0 - 0.15*float64(steps)
	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}
