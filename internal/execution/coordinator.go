// Package execution coordinates an EVM swap end to end: pre-flight, quote
// acquisition with retries, approval dispatch, transaction submission,
// confirmation wait and receipt parsing.
package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/omnidex/swapgate/internal/approval"
	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/permit2"
	"github.com/omnidex/swapgate/internal/precheck"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/quote"
	"github.com/omnidex/swapgate/internal/wallet"
)

const (
	// maxAttempts bounds both quote acquisition and transaction submission.
	maxAttempts = 3
	// backoffBase is the first retry delay; it doubles per attempt.
	backoffBase = time.Second

	// confirmationCeiling bounds the receipt wait.
	confirmationCeiling = 5 * time.Minute
	// confirmationPoll is the receipt polling interval.
	confirmationPoll = 2 * time.Second
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Backend is the RPC surface the coordinator needs. *ethclient.Client
// satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// BackendFunc resolves the backend for a chain.
type BackendFunc func(chainID uint64) (Backend, error)

// Coordinator runs the swap state machine and tracks in-flight executions.
type Coordinator struct {
	orchestrator *quote.Orchestrator
	approvals    *approval.Checker
	prechecker   *precheck.Checker
	backend      BackendFunc

	mu         sync.RWMutex
	executions map[string]*domain.ExecutionResult
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(orchestrator *quote.Orchestrator, approvals *approval.Checker, prechecker *precheck.Checker, backend BackendFunc) *Coordinator {
	return &Coordinator{
		orchestrator: orchestrator,
		approvals:    approvals,
		prechecker:   prechecker,
		backend:      backend,
		executions:   make(map[string]*domain.ExecutionResult),
	}
}

// Status returns the tracked result of a previous execution.
func (c *Coordinator) Status(id string) (*domain.ExecutionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.executions[id]
	return res, ok
}

func (c *Coordinator) track(res *domain.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executions[res.ID] = res
}

// Execute runs the full state machine for an EVM swap. The secret is a
// per-request transient; it is parsed into a signer and never logged.
func (c *Coordinator) Execute(ctx context.Context, req *domain.SwapRequest, secret string) (*domain.ExecutionResult, error) {
	res := &domain.ExecutionResult{ID: uuid.NewString(), Status: domain.StatusPending}
	c.track(res)

	signer, err := c.validate(req, secret)
	if err != nil {
		return c.fail(res, err)
	}

	if err := c.preflight(ctx, req); err != nil {
		return c.fail(res, err)
	}

	q, err := c.acquireQuote(ctx, req)
	if err != nil {
		return c.fail(res, err)
	}
	res.Aggregator = q.Aggregator

	if !chains.IsNativeToken(req.SellToken) {
		q, err = c.handleApproval(ctx, req, q, signer, res)
		if err != nil {
			return c.fail(res, err)
		}
	}

	txHash, err := c.submitSwap(ctx, req, q, signer)
	if err != nil {
		return c.fail(res, err)
	}
	res.TxHash = txHash.Hex()
	c.track(res)

	receipt, err := c.waitConfirmed(ctx, req.ChainID, txHash)
	if err != nil {
		return c.fail(res, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return c.fail(res, domain.NewError(domain.ErrUpstream, "swap transaction reverted"))
	}

	res.ReceivedAmount = c.receivedAmount(receipt, req, q)
	res.Status = domain.StatusSuccess
	c.track(res)
	log.Info("Swap executed", "id", res.ID, "chain", req.ChainID, "aggregator", q.Aggregator,
		"tx", res.TxHash, "received", res.ReceivedAmount)
	return res, nil
}

func (c *Coordinator) fail(res *domain.ExecutionResult, err error) (*domain.ExecutionResult, error) {
	translated := translateError(err)
	res.Status = domain.StatusFailed
	res.Error = translated.Message
	c.track(res)
	return res, translated
}

// validate checks the structural inputs and derives the signer.
func (c *Coordinator) validate(req *domain.SwapRequest, secret string) (*wallet.Signer, error) {
	if strings.EqualFold(req.SellToken, req.BuyToken) {
		return nil, domain.NewError(domain.ErrValidation, "sell and buy token are identical")
	}
	if _, err := domain.ParseAmount(req.SellAmount); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "invalid sell amount", err)
	}
	signer, err := wallet.NewSigner(secret)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "invalid signing secret", err)
	}
	if req.Taker != "" && !strings.EqualFold(req.Taker, signer.Address().Hex()) {
		return nil, domain.NewError(domain.ErrValidation, "taker does not match the signing account")
	}
	req.Taker = signer.Address().Hex()
	return signer, nil
}

func (c *Coordinator) preflight(ctx context.Context, req *domain.SwapRequest) error {
	universal := &domain.UniversalSwapRequest{
		From:             domain.ChainRef{Chain: req.ChainID, Ecosystem: domain.EcosystemEVM},
		To:               domain.ChainRef{Chain: req.ChainID, Ecosystem: domain.EcosystemEVM},
		SellToken:        req.SellToken,
		BuyToken:         req.BuyToken,
		SellAmount:       req.SellAmount,
		Taker:            req.Taker,
		ApprovalStrategy: req.ApprovalStrategy,
	}
	pre := c.prechecker.Run(ctx, universal)
	if !pre.ParametersValid {
		return domain.NewError(domain.ErrValidation, fmt.Sprintf("pre-flight failed: %v", pre.Warnings))
	}
	if !pre.SufficientBalance {
		return domain.NewError(domain.ErrInsufficientFunds, "wallet balance is below the sell amount")
	}
	if !pre.LiquidityAvailable {
		return domain.NewError(domain.ErrUpstream, "no liquidity available for the pair")
	}
	return nil
}

// acquireQuote retries a strict quote with exponential backoff.
func (c *Coordinator) acquireQuote(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffBase<<(attempt-1)); err != nil {
				return nil, err
			}
		}
		q, err := c.orchestrator.GetQuote(ctx, req, quote.NormalizeAggregatorName(req.Aggregator), true)
		if err == nil {
			return q, nil
		}
		lastErr = err
		log.Warn("Quote attempt failed", "attempt", attempt+1, "err", err)
	}
	return nil, domain.WrapError(domain.ErrUpstream, "quote acquisition failed", lastErr)
}

// handleApproval dispatches the strategy: Permit2 signs and splices without
// an on-chain transaction; allowance-holder submits an approval transaction
// and waits for it before the swap is built.
func (c *Coordinator) handleApproval(ctx context.Context, req *domain.SwapRequest, q *domain.SwapQuote, signer *wallet.Signer, res *domain.ExecutionResult) (*domain.SwapQuote, error) {
	if permit2.Detect(q) {
		signed, err := permit2.CreateSignedQuote(req.ChainID, signer, q)
		if err != nil {
			return nil, err
		}
		log.Debug("Permit2 signature spliced into payload", "chain", req.ChainID, "aggregator", q.Aggregator)
		return signed, nil
	}

	amount, _ := domain.ParseAmount(req.SellAmount)
	spender := q.AllowanceTarget
	if spender == "" {
		addr, err := c.approvals.SpenderFor(ctx, req.ChainID, domain.ApprovalAllowanceHolder)
		if err != nil {
			return nil, err
		}
		spender = addr.Hex()
	}

	needed, err := c.approvals.IsApprovalNeeded(ctx, req.ChainID, req.SellToken, req.Taker, spender, amount)
	if err != nil {
		return nil, err
	}
	if !needed {
		return q, nil
	}

	approveTx, err := approval.BuildApprovalTx(req.SellToken, spender, amount)
	if err != nil {
		return nil, err
	}
	hash, err := c.submit(ctx, req.ChainID, approveTx, signer)
	if err != nil {
		return nil, err
	}
	res.ApprovalTxHash = hash.Hex()
	c.track(res)

	receipt, err := c.waitConfirmed(ctx, req.ChainID, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, domain.NewError(domain.ErrUpstream, "approval transaction reverted")
	}
	log.Info("Approval confirmed", "chain", req.ChainID, "spender", spender, "tx", hash)
	return q, nil
}

// submitSwap retries the swap submission with backoff.
func (c *Coordinator) submitSwap(ctx context.Context, req *domain.SwapRequest, q *domain.SwapQuote, signer *wallet.Signer) (common.Hash, error) {
	payload := &domain.TransactionRequest{
		To:                   q.To,
		Data:                 q.Data,
		Value:                q.Value,
		GasLimit:             q.Gas,
		GasPrice:             q.GasPrice,
		MaxFeePerGas:         q.MaxFeePerGas,
		MaxPriorityFeePerGas: q.MaxPriorityFeePerGas,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffBase<<(attempt-1)); err != nil {
				return common.Hash{}, err
			}
		}
		hash, err := c.submit(ctx, req.ChainID, payload, signer)
		if err == nil {
			return hash, nil
		}
		lastErr = err
		// Nonce and replacement conflicts will not heal on retry.
		kind := domain.KindOf(translateError(err))
		if kind == domain.ErrNonce || kind == domain.ErrReplacement || kind == domain.ErrInsufficientFunds {
			break
		}
		log.Warn("Swap submission failed, retrying", "attempt", attempt+1, "err", err)
	}
	return common.Hash{}, lastErr
}

// submit signs and broadcasts one transaction payload.
func (c *Coordinator) submit(ctx context.Context, chainID uint64, payload *domain.TransactionRequest, signer *wallet.Signer) (common.Hash, error) {
	backend, err := c.backend(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := backend.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return common.Hash{}, err
	}

	to := common.HexToAddress(payload.To)
	value := domain.ParseAmountOrZero(payload.Value)
	data, err := hexutil.Decode(payload.Data)
	if err != nil {
		return common.Hash{}, domain.WrapError(domain.ErrValidation, "invalid transaction data", err)
	}

	gasLimit := domain.ParseAmountOrZero(payload.GasLimit).Uint64()
	if gasLimit == 0 {
		gasLimit = 500_000 // aggregator omitted a limit; generous default
	}

	var tx *types.Transaction
	if payload.MaxFeePerGas != "" {
		tip := domain.ParseAmountOrZero(payload.MaxPriorityFeePerGas)
		if tip.Sign() == 0 {
			if tip, err = backend.SuggestGasTipCap(ctx); err != nil {
				return common.Hash{}, err
			}
		}
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(chainID),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: domain.ParseAmountOrZero(payload.MaxFeePerGas),
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		gasPrice := domain.ParseAmountOrZero(payload.GasPrice)
		if gasPrice.Sign() == 0 {
			if gasPrice, err = backend.SuggestGasPrice(ctx); err != nil {
				return common.Hash{}, err
			}
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}

	signed, err := signer.SignTx(tx, new(big.Int).SetUint64(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// SubmitTransaction signs and broadcasts an arbitrary payload on behalf of a
// signer context. Meta-aggregator route execution goes through here.
func (c *Coordinator) SubmitTransaction(ctx context.Context, chainID uint64, payload *domain.TransactionRequest, sc provider.SignerContext) (string, error) {
	signer, err := wallet.NewSigner(sc.Secret)
	if err != nil {
		return "", domain.WrapError(domain.ErrValidation, "invalid signing secret", err)
	}
	if (sc.Address != common.Address{}) && sc.Address != signer.Address() {
		return "", domain.NewError(domain.ErrValidation, "signer context address does not match the secret")
	}
	hash, err := c.submit(ctx, chainID, payload, signer)
	if err != nil {
		return "", translateError(err)
	}
	return hash.Hex(), nil
}

// waitConfirmed polls for the receipt until the confirmation ceiling.
func (c *Coordinator) waitConfirmed(ctx context.Context, chainID uint64, hash common.Hash) (*types.Receipt, error) {
	backend, err := c.backend(chainID)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmationCeiling)
	defer cancel()

	ticker := time.NewTicker(confirmationPoll)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, domain.WrapError(domain.ErrNetwork, "confirmation wait timed out", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// receivedAmount sums ERC-20 Transfer events on the buy token targeting the
// recipient, falling back to the quoted amount when no event matches.
func (c *Coordinator) receivedAmount(receipt *types.Receipt, req *domain.SwapRequest, q *domain.SwapQuote) string {
	recipient := common.HexToAddress(req.EffectiveRecipient())
	buyToken := common.HexToAddress(req.BuyToken)

	total := new(big.Int)
	for _, entry := range receipt.Logs {
		if entry.Address != buyToken || len(entry.Topics) != 3 || entry.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(entry.Topics[2].Bytes()) != recipient {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(entry.Data))
	}
	if total.Sign() > 0 {
		return total.String()
	}
	return q.BuyAmount
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
