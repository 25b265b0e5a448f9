// Package odos adapts the Odos smart order router as an on-chain EVM
// aggregator. Quoting is a two-step flow: /sor/quote/v2 returns a pathId,
// /sor/assemble turns it into calldata. A pathId is only honoured briefly
// upstream, so assembly refreshes the quote once when it has gone stale.
package odos

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/upstream"
)

const (
	// Name is the registry key.
	Name = "odos"

	defaultBaseURL = "https://api.odos.xyz"

	// pathIDLifetime is how long an Odos pathId stays assemblable. The
	// upstream window is 60s; 55s leaves room for the assemble round trip.
	pathIDLifetime = 55 * time.Second

	defaultSlippagePct = 1.0
)

var supportedChains = []uint64{
	chains.Ethereum, chains.Optimism, chains.BSC, chains.Polygon,
	chains.Base, chains.Arbitrum, chains.Avalanche, chains.ZkSyncEra,
}

// Adapter is the Odos client.
type Adapter struct {
	client       *upstream.Client
	referralCode string
	supported    map[uint64]bool

	now func() time.Time // test hook
}

// New builds the adapter. referralCode may be empty.
func New(baseURL, referralCode string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	supported := make(map[uint64]bool, len(supportedChains))
	for _, id := range supportedChains {
		supported[id] = true
	}
	return &Adapter{
		client:       upstream.New(Name, baseURL, timeout, nil),
		referralCode: referralCode,
		supported:    supported,
		now:          time.Now,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Config() provider.Config {
	return provider.Config{BaseURL: a.client.BaseURL(), Timeout: a.client.Timeout()}
}

// CheckHealth hits the public chain inventory endpoint.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	return a.client.GetJSON(ctx, "/info/chains", nil, nil)
}

func (a *Adapter) SupportsChain(chainID uint64) bool { return a.supported[chainID] }

func (a *Adapter) SupportedChains() []uint64 {
	out := make([]uint64, len(supportedChains))
	copy(out, supportedChains)
	return out
}

type quoteRequest struct {
	ChainID              uint64       `json:"chainId"`
	InputTokens          []tokenSlice `json:"inputTokens"`
	OutputTokens         []tokenOut   `json:"outputTokens"`
	UserAddr             string       `json:"userAddr,omitempty"`
	SlippageLimitPercent float64      `json:"slippageLimitPercent"`
	ReferralCode         string       `json:"referralCode,omitempty"`
	Compact              bool         `json:"compact"`
}

type tokenSlice struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
}

type tokenOut struct {
	TokenAddress string `json:"tokenAddress"`
	Proportion   int    `json:"proportion"`
}

type quoteResponse struct {
	PathID          string   `json:"pathId"`
	OutAmounts      []string `json:"outAmounts"`
	GasEstimate     float64  `json:"gasEstimate"`
	PriceImpact     float64  `json:"priceImpact"`
	PercentDiff     float64  `json:"percentDiff"`
	BlockNumber     uint64   `json:"blockNumber"`
	PartnerFeePct   float64  `json:"partnerFeePercent"`
	DataGasEstimate uint64   `json:"dataGasEstimate"`
}

type assembleRequest struct {
	UserAddr string `json:"userAddr"`
	PathID   string `json:"pathId"`
	Simulate bool   `json:"simulate"`
}

type assembleResponse struct {
	Transaction struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		Gas      int64  `json:"gas"`
		GasPrice int64  `json:"gasPrice"`
	} `json:"transaction"`
	OutputTokens []struct {
		Amount string `json:"amount"`
	} `json:"outputTokens"`
}

// path is one quoted route awaiting assembly.
type path struct {
	id        string
	buyAmount string
	gas       int64
	impact    float64
	quotedAt  time.Time
}

// GetQuote quotes, and when strict, assembles the executable calldata.
func (a *Adapter) GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	if !a.SupportsChain(req.ChainID) {
		return nil, domain.NewError(domain.ErrUnsupported,
			fmt.Sprintf("odos does not serve chain %d", req.ChainID))
	}

	p, err := a.quotePath(ctx, req)
	if err != nil {
		return nil, err
	}

	quote := &domain.SwapQuote{
		SellToken:        req.SellToken,
		BuyToken:         req.BuyToken,
		SellAmount:       req.SellAmount,
		BuyAmount:        p.buyAmount,
		Aggregator:       Name,
		ApprovalStrategy: req.ApprovalStrategy,
		EstimatedGas:     fmt.Sprintf("%d", p.gas),
		PriceImpact:      fmt.Sprintf("%.4f", p.impact),
	}

	slippageBps := int64(defaultSlippagePct * 100)
	if req.SlippagePercentage != "" {
		if bps, err := domain.SlippageBps(req.SlippagePercentage); err == nil {
			slippageBps = bps
		}
	}
	quote.MinBuyAmount = domain.ApplySlippageBps(domain.ParseAmountOrZero(p.buyAmount), slippageBps).String()

	if !strict {
		return quote, nil
	}

	assembled, err := a.assemble(ctx, req, p)
	if err != nil {
		return nil, err
	}
	quote.To = assembled.Transaction.To
	quote.Data = assembled.Transaction.Data
	quote.Value = assembled.Transaction.Value
	quote.Gas = fmt.Sprintf("%d", assembled.Transaction.Gas)
	if assembled.Transaction.GasPrice > 0 {
		quote.GasPrice = fmt.Sprintf("%d", assembled.Transaction.GasPrice)
	}
	if len(assembled.OutputTokens) > 0 && assembled.OutputTokens[0].Amount != "" {
		quote.BuyAmount = assembled.OutputTokens[0].Amount
	}
	quote.AllowanceTarget = assembled.Transaction.To
	return quote, nil
}

// quotePath runs the first leg of the flow.
func (a *Adapter) quotePath(ctx context.Context, req *domain.SwapRequest) (*path, error) {
	slippage := defaultSlippagePct
	if req.SlippagePercentage != "" {
		if bps, err := domain.SlippageBps(req.SlippagePercentage); err == nil {
			slippage = float64(bps) / 100
		}
	}

	body := quoteRequest{
		ChainID:              req.ChainID,
		InputTokens:          []tokenSlice{{TokenAddress: odosToken(req.SellToken), Amount: req.SellAmount}},
		OutputTokens:         []tokenOut{{TokenAddress: odosToken(req.BuyToken), Proportion: 1}},
		UserAddr:             req.Taker,
		SlippageLimitPercent: slippage,
		ReferralCode:         a.referralCode,
		Compact:              true,
	}

	var resp quoteResponse
	if err := a.client.PostJSON(ctx, "/sor/quote/v2", body, &resp); err != nil {
		return nil, err
	}
	if resp.PathID == "" || len(resp.OutAmounts) == 0 {
		return nil, domain.NewError(domain.ErrUpstream, "odos returned no path")
	}
	return &path{
		id:        resp.PathID,
		buyAmount: resp.OutAmounts[0],
		gas:       int64(resp.GasEstimate),
		impact:    resp.PriceImpact,
		quotedAt:  a.now(),
	}, nil
}

// assemble redeems a pathId, re-quoting once if the path went stale between
// quote and assembly.
func (a *Adapter) assemble(ctx context.Context, req *domain.SwapRequest, p *path) (*assembleResponse, error) {
	if a.now().Sub(p.quotedAt) > pathIDLifetime {
		log.Debug("Odos path expired before assembly, refreshing", "chain", req.ChainID)
		fresh, err := a.quotePath(ctx, req)
		if err != nil {
			return nil, domain.WrapError(domain.ErrQuoteExpired, "path refresh failed", err)
		}
		p = fresh
	}

	var resp assembleResponse
	err := a.client.PostJSON(ctx, "/sor/assemble", assembleRequest{UserAddr: req.Taker, PathID: p.id}, &resp)
	if err == nil {
		return &resp, nil
	}

	// One retry on upstream rejection covers the race where the path aged out
	// in flight.
	if domain.KindOf(err) == domain.ErrValidation || domain.Retryable(err) {
		fresh, qerr := a.quotePath(ctx, req)
		if qerr != nil {
			return nil, err
		}
		var retry assembleResponse
		if rerr := a.client.PostJSON(ctx, "/sor/assemble", assembleRequest{UserAddr: req.Taker, PathID: fresh.id}, &retry); rerr != nil {
			return nil, rerr
		}
		return &retry, nil
	}
	return nil, err
}

// BuildTransaction quotes and assembles, returning just the payload.
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

// odosToken maps the 0xeee native sentinel to the zero address Odos expects.
func odosToken(token string) string {
	if chains.IsNativeToken(token) {
		return chains.NativeTokenZero
	}
	return token
}
