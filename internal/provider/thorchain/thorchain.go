// Package thorchain adapts THORNode's swap quote API as a native-L1 router
// for Bitcoin and other non-contract chains. A THORChain swap is a deposit to
// an inbound vault with a memo; the route carries both.
package thorchain

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/upstream"
)

const (
	// Name is the registry key.
	Name = "thorchain"

	defaultBaseURL = "https://thornode.ninerealms.com"
)

// evmDestinations lists the EVM chains THORChain can swap into.
var evmDestinations = []uint64{chains.Ethereum, chains.BSC, chains.Avalanche}

// assetForEVMChain maps an EVM chain id to its THORChain gas asset notation.
var assetForEVMChain = map[uint64]string{
	chains.Ethereum:  "ETH.ETH",
	chains.BSC:       "BSC.BNB",
	chains.Avalanche: "AVAX.AVAX",
}

// Adapter is the THORNode client.
type Adapter struct {
	client *upstream.Client
}

// New builds the adapter.
func New(baseURL string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{client: upstream.New(Name, baseURL, timeout, nil)}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Config() provider.Config {
	return provider.Config{BaseURL: a.client.BaseURL(), Timeout: a.client.Timeout()}
}

// CheckHealth pings THORNode.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	return a.client.GetJSON(ctx, "/thorchain/ping", nil, nil)
}

// SupportedDestinations lists the EVM chains reachable from native assets.
func (a *Adapter) SupportedDestinations() []uint64 {
	out := make([]uint64, len(evmDestinations))
	copy(out, evmDestinations)
	return out
}

// quoteResponse is the subset of the THORNode swap quote the gateway uses.
type quoteResponse struct {
	ExpectedAmountOut string `json:"expected_amount_out"`
	InboundAddress    string `json:"inbound_address"`
	Memo              string `json:"memo"`
	OutboundDelaySecs uint64 `json:"outbound_delay_seconds"`
	TotalSwapSeconds  uint64 `json:"total_swap_seconds"`
	Fees              struct {
		Total     string `json:"total"`
		Outbound  string `json:"outbound"`
		Liquidity string `json:"liquidity"`
	} `json:"fees"`
	SlippageBps int64 `json:"slippage_bps"`
}

// QuoteBTC quotes a native swap. Assets arrive in THORChain notation, e.g.
// BTC.BTC or ETH.ETH, or as an EVM chain id the adapter translates.
func (a *Adapter) QuoteBTC(ctx context.Context, req *domain.UniversalSwapRequest) (*domain.RouteQuote, error) {
	fromAsset, err := assetFor(req.From, req.SellToken)
	if err != nil {
		return nil, err
	}
	toAsset, err := assetFor(req.To, req.BuyToken)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("from_asset", fromAsset)
	q.Set("to_asset", toAsset)
	q.Set("amount", req.SellAmount)
	if req.Recipient != "" {
		q.Set("destination", req.Recipient)
	} else if req.Taker != "" {
		q.Set("destination", req.Taker)
	}

	var resp quoteResponse
	if err := a.client.GetJSON(ctx, "/thorchain/quote/swap", q, &resp); err != nil {
		return nil, err
	}
	if resp.ExpectedAmountOut == "" || resp.InboundAddress == "" {
		return nil, domain.NewError(domain.ErrUpstream, "thorchain returned no swap quote")
	}

	route := &domain.RouteQuote{
		Provider:          Name,
		TotalEstimatedOut: resp.ExpectedAmountOut,
		ETASeconds:        resp.TotalSwapSeconds,
		RouteID:           resp.Memo,
		Confidence:        confidenceForSlippage(resp.SlippageBps),
		Steps: []domain.RouteStep{
			{
				Kind:    "native",
				ChainID: req.From.Chain,
				Details: fmt.Sprintf("deposit to %s with memo %s", resp.InboundAddress, resp.Memo),
			},
			{
				Kind:          "swap",
				Details:       fmt.Sprintf("%s -> %s via THORChain pools", fromAsset, toAsset),
				Protocol:      "thorchain",
				EstimatedTime: resp.OutboundDelaySecs,
			},
		},
		Fees: domain.RouteFees{Provider: resp.Fees.Total, Bridge: resp.Fees.Outbound},
	}
	return route, nil
}

// DepositAndTrack looks up an inbound deposit by transaction id and reports
// the swap's observed state.
func (a *Adapter) DepositAndTrack(ctx context.Context, tx, memo string) (domain.ExecutionStatus, error) {
	var resp struct {
		ObservedTx struct {
			Status string `json:"status"`
			Tx     struct {
				Memo string `json:"memo"`
			} `json:"tx"`
		} `json:"observed_tx"`
	}
	if err := a.client.GetJSON(ctx, "/thorchain/tx/"+url.PathEscape(strings.TrimPrefix(tx, "0x")), nil, &resp); err != nil {
		if domain.KindOf(err) == domain.ErrNotFound {
			// Not yet observed by the network.
			return domain.StatusPending, nil
		}
		return "", err
	}
	if memo != "" && resp.ObservedTx.Tx.Memo != "" && resp.ObservedTx.Tx.Memo != memo {
		return domain.StatusFailed, domain.NewError(domain.ErrValidation,
			"observed deposit memo does not match the quoted route")
	}
	switch resp.ObservedTx.Status {
	case "done":
		return domain.StatusSuccess, nil
	case "refund":
		return domain.StatusFailed, nil
	default:
		return domain.StatusPending, nil
	}
}

// assetFor resolves a request side to THORChain asset notation.
func assetFor(ref domain.ChainRef, token string) (string, error) {
	if strings.Contains(token, ".") {
		// Already CHAIN.SYMBOL notation.
		return token, nil
	}
	switch ref.Ecosystem {
	case domain.EcosystemBitcoin:
		return "BTC.BTC", nil
	case domain.EcosystemTHORChain:
		return "THOR.RUNE", nil
	case domain.EcosystemCosmos:
		return "GAIA.ATOM", nil
	}
	if ref.Ecosystem.EVMLike() && chains.IsNativeToken(token) {
		if asset, ok := assetForEVMChain[ref.Chain]; ok {
			return asset, nil
		}
	}
	return "", domain.NewError(domain.ErrUnsupported,
		fmt.Sprintf("no THORChain asset for token %q on chain %d", token, ref.Chain))
}

// confidenceForSlippage degrades with quoted pool slippage, clamped to
// [0.1, 1.0].
func confidenceForSlippage(bps int64) float64 {
	c := 1.0 - float64(bps)/1000
	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}
