// Package precheck runs the composite pre-flight validation: parameters,
// liquidity, approval status, wallet balance and provider health. Probes run
// in sequence and never short-circuit each other; each failure becomes a
// warning rather than an abort.
package precheck

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/approval"
	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/quote"
	"github.com/omnidex/swapgate/internal/routing"
)

const balanceOfABIJSON = `[
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var balanceABI abi.ABI

func init() {
	var err error
	if balanceABI, err = abi.JSON(strings.NewReader(balanceOfABIJSON)); err != nil {
		panic(err)
	}
}

// Backend is the read-only RPC surface the balance probe needs.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BackendFunc resolves the backend for a chain.
type BackendFunc func(chainID uint64) (Backend, error)

// Result is the structured per-check outcome. ApprovalRequired is nil when
// the probe had to be skipped (spender unresolvable).
type Result struct {
	ParametersValid    bool              `json:"parametersValid"`
	LiquidityAvailable bool              `json:"liquidityAvailable"`
	ApprovalRequired   *bool             `json:"approvalRequired"`
	SufficientBalance  bool              `json:"sufficientBalance"`
	ProviderHealthy    bool              `json:"providerHealthy"`
	Warnings           []string          `json:"warnings"`
	Details            map[string]string `json:"details,omitempty"`
}

// Checker composes the five probes.
type Checker struct {
	classifier   *routing.Classifier
	orchestrator *quote.Orchestrator
	approvals    *approval.Checker
	backend      BackendFunc
}

// NewChecker wires the composite validator.
func NewChecker(classifier *routing.Classifier, orchestrator *quote.Orchestrator, approvals *approval.Checker, backend BackendFunc) *Checker {
	return &Checker{classifier: classifier, orchestrator: orchestrator, approvals: approvals, backend: backend}
}

// Run executes all probes for a universal request.
func (c *Checker) Run(ctx context.Context, req *domain.UniversalSwapRequest) *Result {
	res := &Result{
		Warnings: []string{},
		Details:  make(map[string]string),
	}
	isEVM := req.From.Ecosystem.EVMLike()

	// 1. Parameters: structural validity plus chain compatibility.
	res.ParametersValid = c.checkParameters(req, res)

	// 2. Liquidity: best-effort multi-quote fan-out on EVM; stubbed true for
	// other ecosystems until their routers grow a liquidity probe.
	res.LiquidityAvailable = c.checkLiquidity(ctx, req, isEVM, res)

	// 3. Approval.
	res.ApprovalRequired = c.checkApproval(ctx, req, isEVM, res)

	// 4. Balance.
	res.SufficientBalance = c.checkBalance(ctx, req, isEVM, res)

	// 5. Provider health.
	res.ProviderHealthy = c.checkProviderHealth(ctx, res)

	return res
}

func (c *Checker) checkParameters(req *domain.UniversalSwapRequest, res *Result) bool {
	if strings.EqualFold(req.SellToken, req.BuyToken) && req.From == req.To {
		res.Warnings = append(res.Warnings, "sell and buy token are identical")
		return false
	}
	if _, err := domain.ParseAmount(req.SellAmount); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("invalid sell amount: %v", err))
		return false
	}
	if !c.classifier.IsChainCompatible(req) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("chains %d and %d are not routable", req.From.Chain, req.To.Chain))
		return false
	}
	return true
}

func (c *Checker) checkLiquidity(ctx context.Context, req *domain.UniversalSwapRequest, isEVM bool, res *Result) bool {
	if !isEVM {
		return true
	}
	cmp, err := c.orchestrator.GetMultipleQuotes(ctx, req.Legacy())
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("liquidity probe failed: %v", err))
		return false
	}
	for _, q := range cmp.Quotes {
		if domain.ParseAmountOrZero(q.BuyAmount).Sign() > 0 {
			// Successful quotes feed the supported-quote cache inside the
			// orchestrator; nothing more to record here.
			return true
		}
	}
	res.Warnings = append(res.Warnings, "no quote returned a positive buy amount")
	return false
}

func (c *Checker) checkApproval(ctx context.Context, req *domain.UniversalSwapRequest, isEVM bool, res *Result) *bool {
	no := false
	if !isEVM || chains.IsNativeToken(req.SellToken) {
		return &no
	}
	amount, err := domain.ParseAmount(req.SellAmount)
	if err != nil {
		res.Warnings = append(res.Warnings, "approval probe skipped: invalid amount")
		return nil
	}
	spender, err := c.approvals.SpenderFor(ctx, req.From.Chain, req.ApprovalStrategy)
	if err != nil {
		// Skipped: neither true nor false.
		res.Warnings = append(res.Warnings, fmt.Sprintf("approval probe skipped: %v", err))
		return nil
	}
	needed, err := c.approvals.IsApprovalNeeded(ctx, req.From.Chain, req.SellToken, req.Taker, spender.Hex(), amount)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("approval probe skipped: %v", err))
		return nil
	}
	res.Details["spender"] = spender.Hex()
	return &needed
}

func (c *Checker) checkBalance(ctx context.Context, req *domain.UniversalSwapRequest, isEVM bool, res *Result) bool {
	if !isEVM {
		return true
	}
	amount, err := domain.ParseAmount(req.SellAmount)
	if err != nil {
		return false
	}
	balance, err := c.sellTokenBalance(ctx, req.From.Chain, req.SellToken, req.Taker)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("balance probe failed: %v", err))
		return false
	}
	res.Details["balance"] = balance.String()
	if balance.Cmp(amount) < 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("balance %s below sell amount %s", balance, amount))
		return false
	}
	return true
}

func (c *Checker) sellTokenBalance(ctx context.Context, chainID uint64, token, owner string) (*big.Int, error) {
	backend, err := c.backend(chainID)
	if err != nil {
		return nil, err
	}
	account := common.HexToAddress(owner)
	if chains.IsNativeToken(token) {
		return backend.BalanceAt(ctx, account, nil)
	}
	data, err := balanceABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

func (c *Checker) checkProviderHealth(ctx context.Context, res *Result) bool {
	summary := c.orchestrator.HealthSummary(ctx)
	healthy := true
	for name, h := range summary {
		if h.Status != domain.Healthy {
			healthy = false
			res.Warnings = append(res.Warnings, fmt.Sprintf("provider %s is %s", name, h.Status))
			log.Debug("Pre-check found provider not healthy", "provider", name, "status", h.Status)
		}
	}
	return healthy
}
