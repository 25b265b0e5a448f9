package domain

import "fmt"

// Ecosystem identifies the blockchain family a chain belongs to.
type Ecosystem string

const (
	EcosystemEVM       Ecosystem = "evm"
	EcosystemSolana    Ecosystem = "solana"
	EcosystemCosmos    Ecosystem = "cosmos"
	EcosystemBitcoin   Ecosystem = "bitcoin"
	EcosystemSubstrate Ecosystem = "substrate"
	EcosystemNear      Ecosystem = "near"
	EcosystemTerra     Ecosystem = "terra"
	EcosystemAvalanche Ecosystem = "avalanche"
	EcosystemTHORChain Ecosystem = "thorchain"
	EcosystemMaya      Ecosystem = "maya"
)

var ecosystems = map[Ecosystem]bool{
	EcosystemEVM:       true,
	EcosystemSolana:    true,
	EcosystemCosmos:    true,
	EcosystemBitcoin:   true,
	EcosystemSubstrate: true,
	EcosystemNear:      true,
	EcosystemTerra:     true,
	EcosystemAvalanche: true,
	EcosystemTHORChain: true,
	EcosystemMaya:      true,
}

// Known returns whether e is a member of the closed ecosystem set.
func (e Ecosystem) Known() bool { return ecosystems[e] }

// EVMLike reports whether the ecosystem uses EVM semantics for addresses,
// approvals and transaction payloads.
func (e Ecosystem) EVMLike() bool {
	return e == EcosystemEVM || e == EcosystemAvalanche
}

// NativeLike reports whether swaps touching this ecosystem must go through a
// native-L1 router rather than a contract-call aggregator.
func (e Ecosystem) NativeLike() bool {
	switch e {
	case EcosystemBitcoin, EcosystemTHORChain, EcosystemMaya, EcosystemCosmos:
		return true
	}
	return false
}

// SwapType classifies a request by the relationship of its two sides.
type SwapType string

const (
	SwapOnChain    SwapType = "on-chain"
	SwapCrossChain SwapType = "cross-chain"
	SwapL1ToL2     SwapType = "l1-to-l2"
	SwapL2ToL1     SwapType = "l2-to-l1"
	SwapL2ToL2     SwapType = "l2-to-l2"
	SwapNative     SwapType = "native-swap"
)

// TokenStandard identifies the token representation on its chain.
type TokenStandard string

const (
	StandardNative       TokenStandard = "native"
	StandardERC20        TokenStandard = "erc20"
	StandardSPL          TokenStandard = "spl"
	StandardBEP20        TokenStandard = "bep20"
	StandardCosmosNative TokenStandard = "cosmos-native"
	StandardRune         TokenStandard = "rune"
	StandardCacao        TokenStandard = "cacao"
)

// ApprovalStrategy selects how an EVM sell token is made spendable.
type ApprovalStrategy string

const (
	ApprovalAllowanceHolder ApprovalStrategy = "allowance-holder"
	ApprovalPermit2         ApprovalStrategy = "permit2"
)

// ProviderCategory partitions adapters by the capability set they implement.
type ProviderCategory string

const (
	CategoryEVMAggregator  ProviderCategory = "evm-aggregator"
	CategoryMetaAggregator ProviderCategory = "meta-aggregator"
	CategorySolanaRouter   ProviderCategory = "solana-router"
	CategoryNativeRouter   ProviderCategory = "native-router"
)

// ExecutionStatus is the lifecycle state of a submitted swap.
type ExecutionStatus string

const (
	StatusPending ExecutionStatus = "PENDING"
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
	StatusPartial ExecutionStatus = "PARTIAL"
)

// AggregatorType is the legacy enum older callers key EVM adapters by.
type AggregatorType string

const (
	AggregatorZeroX AggregatorType = "ZEROX"
	AggregatorOdos  AggregatorType = "ODOS"
)

// AggregatorTypeForName maps an adapter name to the legacy enum. The second
// return is false for names outside the legacy set; callers are expected to
// log the unexpected name and fall back to AggregatorZeroX.
func AggregatorTypeForName(name string) (AggregatorType, bool) {
	switch name {
	case "0x":
		return AggregatorZeroX, true
	case "odos":
		return AggregatorOdos, true
	}
	return AggregatorZeroX, false
}

// HealthStatus is the monitor's summary of an adapter's recent behavior.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ParseSwapType validates a caller-supplied swap type override.
func ParseSwapType(s string) (SwapType, error) {
	switch t := SwapType(s); t {
	case SwapOnChain, SwapCrossChain, SwapL1ToL2, SwapL2ToL1, SwapL2ToL2, SwapNative:
		return t, nil
	}
	return "", fmt.Errorf("unknown swap type %q", s)
}

// ParseApprovalStrategy validates a caller-supplied approval strategy.
func ParseApprovalStrategy(s string) (ApprovalStrategy, error) {
	switch t := ApprovalStrategy(s); t {
	case ApprovalAllowanceHolder, ApprovalPermit2:
		return t, nil
	}
	return "", fmt.Errorf("unknown approval strategy %q", s)
}
