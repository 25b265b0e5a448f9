// Package chains holds the static chain metadata tables the gateway routes
// and approves against.
package chains

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omnidex/swapgate/internal/domain"
)

const (
	// Permit2Address is the canonical Permit2 deployment, identical on every
	// supported chain.
	Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

	// NativeTokenZero and NativeTokenEee are the two sentinel addresses the
	// API accepts for an ecosystem's gas token, matched case-insensitively.
	NativeTokenZero = "0x0000000000000000000000000000000000000000"
	NativeTokenEee  = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
)

// EVM chain ids the L1/L2 classifier distinguishes.
const (
	Ethereum  uint64 = 1
	Optimism  uint64 = 10
	BSC       uint64 = 56
	Polygon   uint64 = 137
	ZkSyncEra uint64 = 324
	Base      uint64 = 8453
	Arbitrum  uint64 = 42161
	Avalanche uint64 = 43114
)

var (
	// l1Chains and l2Chains drive the l1-to-l2 / l2-to-l1 / l2-to-l2
	// classification for same-ecosystem EVM pairs.
	l1Chains = map[uint64]bool{Ethereum: true, BSC: true, Polygon: true}
	l2Chains = map[uint64]bool{Optimism: true, Arbitrum: true, Base: true, ZkSyncEra: true}

	// permit2Chains lists the chains the canonical Permit2 contract is
	// deployed on.
	permit2Chains = map[uint64]bool{
		Ethereum:  true,
		Optimism:  true,
		BSC:       true,
		Polygon:   true,
		Arbitrum:  true,
		Base:      true,
		Avalanche: true,
	}

	// Names for logs and the supported-chains endpoint before ChainList
	// enrichment kicks in.
	names = map[uint64]string{
		Ethereum:  "Ethereum",
		Optimism:  "Optimism",
		BSC:       "BNB Smart Chain",
		Polygon:   "Polygon",
		ZkSyncEra: "zkSync Era",
		Base:      "Base",
		Arbitrum:  "Arbitrum One",
		Avalanche: "Avalanche C-Chain",
	}

	// rpcEnv maps a chain to the environment variable carrying its RPC URL.
	rpcEnv = map[uint64]string{
		Ethereum:  "ETHEREUM_RPC_URL",
		Optimism:  "OPTIMISM_RPC_URL",
		BSC:       "BSC_RPC_URL",
		Polygon:   "POLYGON_RPC_URL",
		ZkSyncEra: "ZKSYNC_RPC_URL",
		Base:      "BASE_RPC_URL",
		Arbitrum:  "ARBITRUM_RPC_URL",
		Avalanche: "AVALANCHE_RPC_URL",
	}
)

// Hardfork family of a chain's execution layer. The allowance-holder spender
// fallback table is keyed by family because the holder contract was deployed
// per EVM version, not per chain.
type HardforkFamily string

const (
	FamilyCancun   HardforkFamily = "cancun"
	FamilyShanghai HardforkFamily = "shanghai"
	FamilyLondon   HardforkFamily = "london"
)

var hardforkFamilies = map[uint64]HardforkFamily{
	Ethereum:  FamilyCancun,
	Optimism:  FamilyCancun,
	Polygon:   FamilyCancun,
	Base:      FamilyCancun,
	Arbitrum:  FamilyCancun,
	Avalanche: FamilyCancun,
	BSC:       FamilyLondon,
	ZkSyncEra: FamilyShanghai,
}

// allowanceHolders is the fallback spender table used when a probe quote
// cannot resolve the spender dynamically.
var allowanceHolders = map[HardforkFamily]common.Address{
	FamilyCancun:   common.HexToAddress("0x0000000000001fF3684f28c67538d4D072C22734"),
	FamilyShanghai: common.HexToAddress("0x0000000000Db6e8B54300f2a118AB0b78C016bf0"),
	FamilyLondon:   common.HexToAddress("0x0000000000005E88410CcDFaDe4a5EfaE4b49562"),
}

// IsL1 reports membership in the EVM L1 set.
func IsL1(chainID uint64) bool { return l1Chains[chainID] }

// IsL2 reports membership in the EVM L2 set.
func IsL2(chainID uint64) bool { return l2Chains[chainID] }

// SupportsPermit2 reports whether the canonical Permit2 contract exists on
// the chain.
func SupportsPermit2(chainID uint64) bool { return permit2Chains[chainID] }

// IsNativeToken recognises both native-token sentinels, case-insensitively.
func IsNativeToken(token string) bool {
	return strings.EqualFold(token, NativeTokenZero) || strings.EqualFold(token, NativeTokenEee)
}

// Name returns the human name of a known chain, or "" otherwise.
func Name(chainID uint64) string { return names[chainID] }

// RPCEnvVar returns the environment variable holding the chain's RPC URL.
func RPCEnvVar(chainID uint64) (string, bool) {
	v, ok := rpcEnv[chainID]
	return v, ok
}

// Known returns every chain id the gateway carries metadata for.
func Known() []uint64 {
	out := make([]uint64, 0, len(names))
	for id := range names {
		out = append(out, id)
	}
	return out
}

// FallbackAllowanceHolder resolves the hard-coded spender for the chain's
// hardfork family. ok is false for chains outside the table.
func FallbackAllowanceHolder(chainID uint64) (common.Address, bool) {
	family, ok := hardforkFamilies[chainID]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := allowanceHolders[family]
	return addr, ok
}

// SwapTypeForEVMPair applies the L1/L2 table to a same-ecosystem EVM pair
// with differing chain ids.
func SwapTypeForEVMPair(from, to uint64) domain.SwapType {
	switch {
	case IsL1(from) && IsL2(to):
		return domain.SwapL1ToL2
	case IsL2(from) && IsL1(to):
		return domain.SwapL2ToL1
	case IsL2(from) && IsL2(to):
		return domain.SwapL2ToL2
	}
	return domain.SwapCrossChain
}
