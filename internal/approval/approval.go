// Package approval decides how an EVM sell token becomes spendable: a
// traditional ERC-20 approval to the aggregator's spender, or a gas-less
// Permit2 permit. It owns allowance reads and spender resolution.
package approval

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
)

// spenderTTL bounds how long a dynamically resolved allowance target is
// trusted before re-probing.
const spenderTTL = 24 * time.Hour

const erc20ABIJSON = `[
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const permit2ABIJSON = `[
  {"inputs":[{"name":"owner","type":"address"},{"name":"token","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"amount","type":"uint160"},{"name":"expiration","type":"uint48"},{"name":"nonce","type":"uint48"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI   abi.ABI
	permit2ABI abi.ABI
)

func init() {
	var err error
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic(err)
	}
	if permit2ABI, err = abi.JSON(strings.NewReader(permit2ABIJSON)); err != nil {
		panic(err)
	}
}

// ContractBackend is the read-only RPC surface the checker needs.
// *ethclient.Client satisfies it.
type ContractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// BackendFunc resolves the RPC backend for a chain.
type BackendFunc func(chainID uint64) (ContractBackend, error)

// ProbeFunc issues a small probe quote on the chain and returns its
// allowanceTarget. Wired to the 0x adapter by the composition root.
type ProbeFunc func(ctx context.Context, chainID uint64) (string, error)

// Checker answers approval questions for EVM swaps.
type Checker struct {
	backend BackendFunc
	probe   ProbeFunc

	// spenders caches dynamically resolved allowance targets per chain.
	spenders *lru.Cache

	now func() time.Time // test hook
}

type spenderEntry struct {
	addr common.Address
	at   time.Time
}

// NewChecker builds a checker over the given backends and probe.
func NewChecker(backend BackendFunc, probe ProbeFunc) *Checker {
	cache, _ := lru.New(64)
	return &Checker{backend: backend, probe: probe, spenders: cache, now: time.Now}
}

// IsApprovalNeeded reports whether the owner must grant an allowance before
// the swap can spend the sell token.
func (c *Checker) IsApprovalNeeded(ctx context.Context, chainID uint64, token, owner, spender string, amount *big.Int) (bool, error) {
	if chains.IsNativeToken(token) {
		return false, nil
	}
	if chains.SupportsPermit2(chainID) {
		compatible, err := c.isTokenPermit2Compatible(ctx, chainID, token)
		if err == nil && compatible {
			return c.isPermit2ApprovalNeeded(ctx, chainID, token, owner, spender, amount)
		}
		if err != nil {
			log.Warn("Permit2 compatibility check failed, using ERC-20 path", "chain", chainID, "token", token, "err", err)
		}
	}
	allowance, err := c.Allowance(ctx, chainID, token, owner, spender)
	if err != nil {
		return false, err
	}
	return allowance.Cmp(amount) < 0, nil
}

// Allowance reads the plain ERC-20 allowance(owner, spender).
func (c *Checker) Allowance(ctx context.Context, chainID uint64, token, owner, spender string) (*big.Int, error) {
	backend, err := c.backend(chainID)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrNetwork, "allowance read failed", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// Permit2Allowance reads the Permit2 contract's scoped allowance for
// (owner, token, spender).
func (c *Checker) Permit2Allowance(ctx context.Context, chainID uint64, token, owner, spender string) (amount *big.Int, expiration uint64, err error) {
	backend, err := c.backend(chainID)
	if err != nil {
		return nil, 0, err
	}
	data, err := permit2ABI.Pack("allowance",
		common.HexToAddress(owner), common.HexToAddress(token), common.HexToAddress(spender))
	if err != nil {
		return nil, 0, err
	}
	permit2 := common.HexToAddress(chains.Permit2Address)
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &permit2, Data: data}, nil)
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrNetwork, "permit2 allowance read failed", err)
	}
	values, err := permit2ABI.Unpack("allowance", out)
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrInternal, "permit2 allowance decode failed", err)
	}
	amount = values[0].(*big.Int)
	expiration = values[1].(*big.Int).Uint64()
	return amount, expiration, nil
}

// isPermit2ApprovalNeeded applies the Permit2 freshness rule: approval is
// needed when the scoped allowance expired or is short. Errors default to
// "needed" — conservative, and logged as the diagnostic channel since the
// same answer can mask a misconfigured Permit2 address.
func (c *Checker) isPermit2ApprovalNeeded(ctx context.Context, chainID uint64, token, owner, spender string, amount *big.Int) (bool, error) {
	allowed, expiration, err := c.Permit2Allowance(ctx, chainID, token, owner, spender)
	if err != nil {
		log.Warn("Permit2 allowance read failed, assuming approval needed",
			"chain", chainID, "token", token, "err", err)
		return true, nil
	}
	// The Permit2 contract never issues an open-ended allowance; expiration 0
	// is in the past.
	if expiration < uint64(c.now().Unix()) {
		return true, nil
	}
	return allowed.Cmp(amount) < 0, nil
}

// isTokenPermit2Compatible checks that the token is an actual contract; EOAs
// and empty addresses cannot grant Permit2 allowances.
func (c *Checker) isTokenPermit2Compatible(ctx context.Context, chainID uint64, token string) (bool, error) {
	backend, err := c.backend(chainID)
	if err != nil {
		return false, err
	}
	code, err := backend.CodeAt(ctx, common.HexToAddress(token), nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// SpenderFor resolves the address the owner must approve for a strategy.
// Permit2 is a constant; allowance-holder is probed dynamically with a 24 h
// cache and falls back to the per-hardfork table.
func (c *Checker) SpenderFor(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy) (common.Address, error) {
	switch strategy {
	case domain.ApprovalPermit2:
		return common.HexToAddress(chains.Permit2Address), nil
	case domain.ApprovalAllowanceHolder, "":
		return c.allowanceHolderSpender(ctx, chainID)
	}
	return common.Address{}, domain.NewError(domain.ErrUnsupported,
		fmt.Sprintf("unknown approval strategy %q", strategy))
}

func (c *Checker) allowanceHolderSpender(ctx context.Context, chainID uint64) (common.Address, error) {
	if v, ok := c.spenders.Get(chainID); ok {
		entry := v.(spenderEntry)
		if c.now().Sub(entry.at) < spenderTTL {
			return entry.addr, nil
		}
		c.spenders.Remove(chainID)
	}

	if c.probe != nil {
		target, err := c.probe(ctx, chainID)
		if err == nil && target != "" {
			addr := common.HexToAddress(target)
			c.spenders.Add(chainID, spenderEntry{addr: addr, at: c.now()})
			return addr, nil
		}
		if err != nil {
			log.Warn("Spender probe failed, using fallback table", "chain", chainID, "err", err)
		}
	}

	if addr, ok := chains.FallbackAllowanceHolder(chainID); ok {
		return addr, nil
	}
	return common.Address{}, domain.NewError(domain.ErrUnsupported,
		fmt.Sprintf("no allowance holder known for chain %d", chainID))
}

// Status is the answer served by /universal-swap/approval/status.
type Status struct {
	Required         bool                    `json:"required"`
	Spender          string                  `json:"spender,omitempty"`
	CurrentAllowance string                  `json:"currentAllowance,omitempty"`
	Strategy         domain.ApprovalStrategy `json:"strategy"`
}

// Check resolves the spender for the strategy and answers whether an
// approval is required for the amount.
func (c *Checker) Check(ctx context.Context, chainID uint64, token, owner string, amount *big.Int, strategy domain.ApprovalStrategy) (*Status, error) {
	if strategy == "" {
		strategy = domain.ApprovalAllowanceHolder
	}
	if chains.IsNativeToken(token) {
		return &Status{Required: false, Strategy: strategy}, nil
	}
	spender, err := c.SpenderFor(ctx, chainID, strategy)
	if err != nil {
		return nil, err
	}
	needed, err := c.IsApprovalNeeded(ctx, chainID, token, owner, spender.Hex(), amount)
	if err != nil {
		return nil, err
	}
	st := &Status{Required: needed, Spender: spender.Hex(), Strategy: strategy}
	if allowance, err := c.Allowance(ctx, chainID, token, owner, spender.Hex()); err == nil {
		st.CurrentAllowance = allowance.String()
	}
	return st, nil
}

// BuildApprovalTx encodes an ERC-20 approve(spender, amount) payload.
func BuildApprovalTx(token, spender string, amount *big.Int) (*domain.TransactionRequest, error) {
	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionRequest{
		To:    common.HexToAddress(token).Hex(),
		Data:  hexutil.Encode(data),
		Value: "0",
	}, nil
}
