package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SwapRequest is the legacy single-chain request shape. All amounts are
// base-unit decimal strings; addresses are ecosystem-native identifiers.
type SwapRequest struct {
	ChainID            uint64           `json:"chainId"`
	SellToken          string           `json:"sellToken"`
	BuyToken           string           `json:"buyToken"`
	SellAmount         string           `json:"sellAmount"`
	Taker              string           `json:"taker"`
	Recipient          string           `json:"recipient,omitempty"`
	SlippagePercentage string           `json:"slippagePercentage,omitempty"`
	Deadline           uint64           `json:"deadline,omitempty"`
	Aggregator         string           `json:"aggregator,omitempty"`
	ApprovalStrategy   ApprovalStrategy `json:"approvalStrategy,omitempty"`
}

// ChainRef names one side of a universal request.
type ChainRef struct {
	Chain     uint64        `json:"chain"`
	Ecosystem Ecosystem     `json:"ecosystem"`
	Standard  TokenStandard `json:"standard,omitempty"`
}

// UniversalSwapRequest is the gateway entry shape. It carries explicit
// source/destination tuples and an optional SwapType override; when both
// sides are the same EVM chain it collapses to a SwapRequest.
type UniversalSwapRequest struct {
	From               ChainRef         `json:"from"`
	To                 ChainRef         `json:"to"`
	SellToken          string           `json:"sellToken"`
	BuyToken           string           `json:"buyToken"`
	SellAmount         string           `json:"sellAmount"`
	Taker              string           `json:"taker"`
	Recipient          string           `json:"recipient,omitempty"`
	SlippagePercentage string           `json:"slippagePercentage,omitempty"`
	Deadline           uint64           `json:"deadline,omitempty"`
	SwapType           SwapType         `json:"swapType,omitempty"`
	Aggregator         string           `json:"aggregator,omitempty"`
	ApprovalStrategy   ApprovalStrategy `json:"approvalStrategy,omitempty"`
}

// Legacy collapses a same-EVM-chain universal request to the legacy shape.
func (r *UniversalSwapRequest) Legacy() *SwapRequest {
	return &SwapRequest{
		ChainID:            r.From.Chain,
		SellToken:          r.SellToken,
		BuyToken:           r.BuyToken,
		SellAmount:         r.SellAmount,
		Taker:              r.Taker,
		Recipient:          r.Recipient,
		SlippagePercentage: r.SlippagePercentage,
		Deadline:           r.Deadline,
		Aggregator:         r.Aggregator,
		ApprovalStrategy:   r.ApprovalStrategy,
	}
}

// EffectiveRecipient returns the recipient, defaulting to the taker.
func (r *SwapRequest) EffectiveRecipient() string {
	if r.Recipient != "" {
		return r.Recipient
	}
	return r.Taker
}

// EIP712Payload is the typed-data bundle an adapter attaches to a Permit2
// quote. Types and Domain come from the upstream aggregator and are treated
// as opaque beyond what apitypes needs for hashing.
type EIP712Payload struct {
	Types       apitypes.Types            `json:"types"`
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Message     apitypes.TypedDataMessage `json:"message"`
	PrimaryType string                    `json:"primaryType"`
}

// Permit2Data is the signable permit block attached to a quote.
type Permit2Data struct {
	Type   string        `json:"type"`
	Hash   string        `json:"hash"`
	EIP712 EIP712Payload `json:"eip712"`
}

// SwapQuote is an executable quote from an on-chain aggregator. Data and
// Value form the transaction payload expected to be broadcast from the taker.
type SwapQuote struct {
	SellToken            string           `json:"sellToken"`
	BuyToken             string           `json:"buyToken"`
	SellAmount           string           `json:"sellAmount"`
	BuyAmount            string           `json:"buyAmount"`
	MinBuyAmount         string           `json:"minBuyAmount"`
	To                   string           `json:"to"`
	Data                 string           `json:"data"`
	Value                string           `json:"value"`
	Gas                  string           `json:"gas"`
	GasPrice             string           `json:"gasPrice,omitempty"`
	MaxFeePerGas         string           `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string           `json:"maxPriorityFeePerGas,omitempty"`
	AllowanceTarget      string           `json:"allowanceTarget,omitempty"`
	Aggregator           string           `json:"aggregator"`
	PriceImpact          string           `json:"priceImpact,omitempty"`
	EstimatedGas         string           `json:"estimatedGas,omitempty"`
	Permit2              *Permit2Data     `json:"permit2,omitempty"`
	ApprovalStrategy     ApprovalStrategy `json:"approvalStrategy,omitempty"`
}

// RouteFees itemizes the cost of a cross-chain route.
type RouteFees struct {
	Gas      string `json:"gas"`
	Provider string `json:"provider"`
	Bridge   string `json:"bridge,omitempty"`
	App      string `json:"app,omitempty"`
}

// RouteStep is one hop of a cross-chain route.
type RouteStep struct {
	Kind          string `json:"kind"` // swap, bridge or native
	ChainID       uint64 `json:"chainId"`
	Details       string `json:"details"`
	Protocol      string `json:"protocol,omitempty"`
	EstimatedTime uint64 `json:"estimatedTime,omitempty"`
}

// RouteQuote is a multi-step quote from a meta-aggregator or native router.
// Confidence is clamped to [0.1, 1.0] by the adapter.
type RouteQuote struct {
	Provider          string      `json:"provider"`
	Steps             []RouteStep `json:"steps"`
	TotalEstimatedOut string      `json:"totalEstimatedOut"`
	Fees              RouteFees   `json:"fees"`
	ETASeconds        uint64      `json:"etaSeconds,omitempty"`
	RouteID           string      `json:"routeId,omitempty"`
	PriceImpact       string      `json:"priceImpact,omitempty"`
	Confidence        float64     `json:"confidence"`
}

// QuoteResult is the tagged variant over the two quote shapes. Exactly one
// field is non-nil.
type QuoteResult struct {
	Legacy *SwapQuote  `json:"legacy,omitempty"`
	Route  *RouteQuote `json:"route,omitempty"`
}

// LegacyQuote wraps a SwapQuote as a QuoteResult.
func LegacyQuote(q *SwapQuote) QuoteResult { return QuoteResult{Legacy: q} }

// RouteResult wraps a RouteQuote as a QuoteResult.
func RouteResult(q *RouteQuote) QuoteResult { return QuoteResult{Route: q} }

// Out returns the expected output amount of either variant.
func (r QuoteResult) Out() string {
	if r.Legacy != nil {
		return r.Legacy.BuyAmount
	}
	if r.Route != nil {
		return r.Route.TotalEstimatedOut
	}
	return "0"
}

// ProviderName returns the adapter name of either variant.
func (r QuoteResult) ProviderName() string {
	if r.Legacy != nil {
		return r.Legacy.Aggregator
	}
	if r.Route != nil {
		return r.Route.Provider
	}
	return ""
}

// ProviderHealth is the monitor's cached observation for one adapter.
// Mutated only by the health monitor.
type ProviderHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Latency   time.Duration `json:"latency,omitempty"`
	LastCheck time.Time     `json:"lastCheck"`
	ErrorRate float64       `json:"errorRate,omitempty"`
}

// TransactionRequest is the payload an adapter builds for submission.
type TransactionRequest struct {
	To                   string `json:"to"`
	Data                 string `json:"data"`
	Value                string `json:"value"`
	GasLimit             string `json:"gasLimit,omitempty"`
	GasPrice             string `json:"gasPrice,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
}

// ExecutionResult reports the outcome of one coordinated swap.
type ExecutionResult struct {
	ID             string          `json:"id"`
	Status         ExecutionStatus `json:"status"`
	TxHash         string          `json:"txHash,omitempty"`
	ApprovalTxHash string          `json:"approvalTxHash,omitempty"`
	ReceivedAmount string          `json:"receivedAmount,omitempty"`
	Aggregator     string          `json:"aggregator,omitempty"`
	Error          string          `json:"error,omitempty"`
}
