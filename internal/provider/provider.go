// Package provider defines the adapter capability sets, the self-registration
// registry and the health monitor the quote orchestrator draws on.
package provider

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omnidex/swapgate/internal/domain"
)

// Config is the non-secret part of an adapter's wiring, surfaced for
// diagnostics. Credentials stay private to the adapter.
type Config struct {
	BaseURL string        `json:"baseUrl"`
	Timeout time.Duration `json:"timeout"`
}

// Provider is the universal capability set every adapter implements.
type Provider interface {
	// Name is the stable registry key, e.g. "0x" or "lifi".
	Name() string
	// CheckHealth probes the upstream service. The monitor bounds the call
	// with its own timeout and derives latency and status from the outcome.
	CheckHealth(ctx context.Context) error
	// Config exposes the adapter's wiring.
	Config() Config
}

// OnChainAggregator serves single-chain EVM swaps.
type OnChainAggregator interface {
	Provider

	// GetQuote returns an executable quote. strict requests a firm quote
	// (bound to the taker) rather than an indicative price.
	GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error)
	// BuildTransaction returns the raw payload for a previously quoted swap.
	BuildTransaction(ctx context.Context, req *domain.SwapRequest) (*domain.TransactionRequest, error)
	SupportsChain(chainID uint64) bool
	SupportedChains() []uint64
}

// MetaAggregator serves cross-chain and L1/L2 routes.
type MetaAggregator interface {
	Provider

	GetRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]*domain.RouteQuote, error)
	// Execute redeems a previously returned routeId. The signer context is a
	// per-request transient; implementations must not retain it.
	Execute(ctx context.Context, routeID string, signer SignerContext) ([]string, error)
	Status(ctx context.Context, routeID string) (domain.ExecutionStatus, error)
	SupportedChains() (from, to []uint64)
}

// SolanaTransaction is the build-and-sign product of a Solana router.
type SolanaTransaction struct {
	RawTx        string   `json:"rawTx"`
	TxID         string   `json:"txid,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

// SolanaRouter serves swaps within the Solana ecosystem.
type SolanaRouter interface {
	Provider

	Quote(ctx context.Context, req *domain.UniversalSwapRequest) (*domain.RouteQuote, error)
	// BuildAndSign assembles the swap transaction; keypair may be empty for
	// an unsigned build. Signing is a future adapter concern.
	BuildAndSign(ctx context.Context, quote *domain.RouteQuote, keypair string) (*SolanaTransaction, error)
	SupportsTokenPair(a, b string) bool
}

// NativeRouter serves native-L1 swaps (Bitcoin, THORChain, Maya, Cosmos).
type NativeRouter interface {
	Provider

	QuoteBTC(ctx context.Context, req *domain.UniversalSwapRequest) (*domain.RouteQuote, error)
	DepositAndTrack(ctx context.Context, tx, memo string) (domain.ExecutionStatus, error)
	SupportedDestinations() []uint64
}

// SpenderProvider is an optional EVM capability: adapters that know their
// approval spender per strategy implement it, probed via type assertion at
// the call site.
type SpenderProvider interface {
	GetSpenderAddress(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy) (common.Address, error)
}

// SignerContext gives a meta-aggregator just enough to act on the caller's
// behalf during Execute. The secret is per-request and must never be logged.
type SignerContext struct {
	Address common.Address
	Secret  string
}
