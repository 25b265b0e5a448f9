// Package zerox adapts the 0x v2 Swap API as an on-chain EVM aggregator. It
// serves both approval strategies: the allowance-holder endpoints for plain
// ERC-20 approvals and the permit2 endpoints for gas-less permits.
package zerox

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/upstream"
)

const (
	// Name is the registry key.
	Name = "0x"

	defaultBaseURL = "https://api.0x.org"
	apiVersion     = "v2"

	// defaultSlippageBps applies when the caller omitted a tolerance.
	defaultSlippageBps = 100
)

// supportedChains is the 0x v2 deployment set.
var supportedChains = []uint64{
	chains.Ethereum, chains.Optimism, chains.BSC, chains.Polygon,
	chains.Base, chains.Arbitrum, chains.Avalanche,
}

// Adapter is the 0x client. It implements provider.OnChainAggregator and
// provider.SpenderProvider.
type Adapter struct {
	client    *upstream.Client
	supported map[uint64]bool
}

// New builds the adapter. apiKey may be empty for unauthenticated use with
// tight upstream rate limits.
func New(baseURL, apiKey string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	headers := map[string]string{"0x-version": apiVersion}
	if apiKey != "" {
		headers["0x-api-key"] = apiKey
	}
	supported := make(map[uint64]bool, len(supportedChains))
	for _, id := range supportedChains {
		supported[id] = true
	}
	return &Adapter{
		client:    upstream.New(Name, baseURL, timeout, headers),
		supported: supported,
	}
}

func (a *Adapter) Name() string { return Name }

// Config exposes the non-secret wiring.
func (a *Adapter) Config() provider.Config {
	return provider.Config{BaseURL: a.client.BaseURL(), Timeout: a.client.Timeout()}
}

// CheckHealth issues an indicative mainnet price probe.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	q := url.Values{}
	q.Set("chainId", "1")
	q.Set("sellToken", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2") // WETH
	q.Set("buyToken", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")  // USDC
	q.Set("sellAmount", "1000000000000000000")
	return a.client.GetJSON(ctx, "/swap/allowance-holder/price", q, nil)
}

func (a *Adapter) SupportsChain(chainID uint64) bool { return a.supported[chainID] }

func (a *Adapter) SupportedChains() []uint64 {
	out := make([]uint64, len(supportedChains))
	copy(out, supportedChains)
	return out
}

// quoteResponse is the subset of the v2 quote/price payload the gateway uses.
type quoteResponse struct {
	SellToken    string `json:"sellToken"`
	BuyToken     string `json:"buyToken"`
	SellAmount   string `json:"sellAmount"`
	BuyAmount    string `json:"buyAmount"`
	MinBuyAmount string `json:"minBuyAmount"`
	Transaction  struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		Gas      string `json:"gas"`
		GasPrice string `json:"gasPrice"`
	} `json:"transaction"`
	Issues struct {
		Allowance *struct {
			Spender string `json:"spender"`
		} `json:"allowance"`
	} `json:"issues"`
	Permit2 *struct {
		Type   string               `json:"type"`
		Hash   string               `json:"hash"`
		EIP712 domain.EIP712Payload `json:"eip712"`
	} `json:"permit2"`
}

// GetQuote fetches a firm quote (strict) or an indicative price from the
// endpoint family matching the request's approval strategy.
func (a *Adapter) GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	if !a.SupportsChain(req.ChainID) {
		return nil, domain.NewError(domain.ErrUnsupported,
			fmt.Sprintf("0x does not serve chain %d", req.ChainID))
	}

	family := "allowance-holder"
	if req.ApprovalStrategy == domain.ApprovalPermit2 {
		family = "permit2"
	}
	endpoint := "/swap/" + family + "/price"
	if strict {
		endpoint = "/swap/" + family + "/quote"
	}

	q := url.Values{}
	q.Set("chainId", strconv.FormatUint(req.ChainID, 10))
	q.Set("sellToken", req.SellToken)
	q.Set("buyToken", req.BuyToken)
	q.Set("sellAmount", req.SellAmount)
	if req.Taker != "" {
		q.Set("taker", req.Taker)
	}
	bps := int64(defaultSlippageBps)
	if req.SlippagePercentage != "" {
		parsed, err := domain.SlippageBps(req.SlippagePercentage)
		if err != nil {
			return nil, domain.WrapError(domain.ErrValidation, "invalid slippage", err)
		}
		bps = parsed
	}
	q.Set("slippageBps", strconv.FormatInt(bps, 10))

	var resp quoteResponse
	if err := a.client.GetJSON(ctx, endpoint, q, &resp); err != nil {
		return nil, err
	}

	quote := &domain.SwapQuote{
		SellToken:        req.SellToken,
		BuyToken:         req.BuyToken,
		SellAmount:       resp.SellAmount,
		BuyAmount:        resp.BuyAmount,
		MinBuyAmount:     resp.MinBuyAmount,
		To:               resp.Transaction.To,
		Data:             resp.Transaction.Data,
		Value:            resp.Transaction.Value,
		Gas:              resp.Transaction.Gas,
		GasPrice:         resp.Transaction.GasPrice,
		Aggregator:       Name,
		ApprovalStrategy: req.ApprovalStrategy,
	}
	if resp.Issues.Allowance != nil {
		quote.AllowanceTarget = resp.Issues.Allowance.Spender
	}
	if resp.Permit2 != nil {
		quote.Permit2 = &domain.Permit2Data{
			Type:   resp.Permit2.Type,
			Hash:   resp.Permit2.Hash,
			EIP712: resp.Permit2.EIP712,
		}
	}
	return quote, nil
}

// BuildTransaction re-quotes firmly and returns just the payload.
func (a *Adapter) BuildTransaction(ctx context.Context, req *domain.SwapRequest) (*domain.TransactionRequest, error) {
	quote, err := a.GetQuote(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionRequest{
		To:       quote.To,
		Data:     quote.Data,
		Value:    quote.Value,
		GasLimit: quote.Gas,
		GasPrice: quote.GasPrice,
	}, nil
}

// GetSpenderAddress resolves the approval spender per strategy. Permit2 is the
// canonical constant; the allowance holder comes from a probe quote's
// allowance issue.
func (a *Adapter) GetSpenderAddress(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy) (common.Address, error) {
	if strategy == domain.ApprovalPermit2 {
		return common.HexToAddress(chains.Permit2Address), nil
	}
	target, err := a.ProbeAllowanceTarget(ctx, chainID)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(target), nil
}

// ProbeAllowanceTarget issues a minimal indicative price on the chain and
// reads the allowance target it reports.
func (a *Adapter) ProbeAllowanceTarget(ctx context.Context, chainID uint64) (string, error) {
	q := url.Values{}
	q.Set("chainId", strconv.FormatUint(chainID, 10))
	q.Set("sellToken", chains.NativeTokenEee)
	q.Set("buyToken", chains.NativeTokenZero)
	q.Set("sellAmount", "1000000000000000000")

	var resp quoteResponse
	if err := a.client.GetJSON(ctx, "/swap/allowance-holder/price", q, &resp); err != nil {
		return "", err
	}
	if resp.Issues.Allowance == nil || resp.Issues.Allowance.Spender == "" {
		log.Debug("Probe quote returned no allowance issue", "chain", chainID)
		return "", domain.NewError(domain.ErrUpstream, "probe quote reported no allowance target")
	}
	return resp.Issues.Allowance.Spender, nil
}
